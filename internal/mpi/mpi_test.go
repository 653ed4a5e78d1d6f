package mpi

import (
	"testing"

	"gebr/internal/config"
)

func TestCommand(t *testing.T) {
	provider := NewProvider(map[string]config.MPI{
		"openmpi": {Name: "openmpi", Mpirun: "mpirun"},
		"mpich":   {Name: "mpich", Mpirun: "mpiexec", BinPath: "/opt/mpich/bin", Hosts: []string{"n1", "n2"}},
		"abs":     {Name: "abs", Mpirun: "/usr/bin/mpirun", BinPath: "/ignored"},
		"lib":     {Name: "lib", LibPath: "/opt/lib"},
	})

	tests := []struct {
		name   string
		flavor string
		nprocs int
		want   string
		ok     bool
	}{
		{"plain", "openmpi", 4, "mpirun -np 4 prog", true},
		{"hosts and binpath", "mpich", 2, "/opt/mpich/bin/mpiexec -np 2 --host n1,n2 prog", true},
		{"absolute launcher", "abs", 1, "/usr/bin/mpirun -np 1 prog", true},
		{"libpath", "lib", 3, "LD_LIBRARY_PATH=/opt/lib mpirun -np 3 prog", true},
		{"nprocs floor", "openmpi", 0, "mpirun -np 1 prog", true},
		{"unknown", "lam", 2, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := provider.Command(tt.flavor, tt.nprocs, "prog")
			if ok != tt.ok || got != tt.want {
				t.Fatalf("Command(%q) = %q, %v; want %q, %v", tt.flavor, got, ok, tt.want, tt.ok)
			}
		})
	}
	if !provider.Supported("mpich") || provider.Supported("lam") {
		t.Fatal("unexpected Supported result")
	}
}

func TestNilProvider(t *testing.T) {
	var p *Provider
	if _, ok := p.Command("openmpi", 1, "x"); ok {
		t.Fatal("nil provider should not resolve flavors")
	}
}

func TestBracket(t *testing.T) {
	provider := NewProvider(map[string]config.MPI{
		"lam": {Name: "lam", InitCommand: " lamboot ", EndCommand: "lamhalt"},
	})
	init, end := provider.Bracket("lam")
	if init != "lamboot" || end != "lamhalt" {
		t.Fatalf("Bracket(lam) = %q, %q", init, end)
	}
	if init, end := provider.Bracket("openmpi"); init != "" || end != "" {
		t.Fatalf("unknown flavor should have no bracket, got %q, %q", init, end)
	}
}

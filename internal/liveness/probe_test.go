//go:build unix

package liveness

import (
	"os"
	"testing"
)

func TestIsAliveForSelf(t *testing.T) {
	alive, err := IsAlive(os.Getpid())
	if err != nil {
		t.Fatalf("IsAlive(self): %v", err)
	}
	if !alive {
		t.Error("IsAlive(self) = false, want true")
	}
}

func TestIsAliveForZeroOrNegativePID(t *testing.T) {
	for _, pid := range []int{0, -1} {
		alive, err := IsAlive(pid)
		if err != nil {
			t.Fatalf("IsAlive(%d): %v", pid, err)
		}
		if alive {
			t.Errorf("IsAlive(%d) = true, want false", pid)
		}
	}
}

func TestIsAliveForExitedProcess(t *testing.T) {
	cmd := exitedProcess(t)
	alive, err := IsAlive(cmd)
	if err != nil {
		t.Fatalf("IsAlive(exited pid): %v", err)
	}
	if alive {
		t.Error("IsAlive(exited pid) = true, want false")
	}
}

//go:build linux

package serialport

import "testing"

func TestSplitPathAndBaud(t *testing.T) {
	tests := []struct {
		arg     string
		path    string
		baud    uint64
		hasBaud bool
		wantErr bool
	}{
		{"/dev/ttyUSB0", "/dev/ttyUSB0", 0, false, false},
		{"/dev/ttyUSB0,115200", "/dev/ttyUSB0", 115200, true, false},
		{"/dev/ttyUSB0,not-a-number", "", 0, false, true},
	}

	for _, tt := range tests {
		path, baud, hasBaud, err := SplitPathAndBaud(tt.arg)
		if tt.wantErr {
			if err == nil {
				t.Errorf("SplitPathAndBaud(%q): expected error, got none", tt.arg)
			}
			continue
		}
		if err != nil {
			t.Fatalf("SplitPathAndBaud(%q): %v", tt.arg, err)
		}
		if path != tt.path || baud != tt.baud || hasBaud != tt.hasBaud {
			t.Errorf("SplitPathAndBaud(%q) = (%q, %d, %v), want (%q, %d, %v)",
				tt.arg, path, baud, hasBaud, tt.path, tt.baud, tt.hasBaud)
		}
	}
}

func TestParseBaudRejectsUnsupportedRate(t *testing.T) {
	if _, err := ParseBaud(1234); err == nil {
		t.Error("ParseBaud(1234) should fail: not a standard rate")
	}
}

func TestParseBaudAcceptsStandardRates(t *testing.T) {
	for _, rate := range []uint64{2400, 9600, 19200, 38400, 57600, 115200, 230400} {
		if _, err := ParseBaud(rate); err != nil {
			t.Errorf("ParseBaud(%d): %v", rate, err)
		}
	}
}

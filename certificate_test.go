package telsa

import "testing"

func TestMatchHost(t *testing.T) {
	cases := []struct {
		cn, host string
		want     bool
	}{
		{"device.example.com", "device.example.com", true},
		{"Device.Example.com", "device.example.com", true}, // case-insensitive
		{"device.example.com", "other.example.com", false},
		{"*.example.com", "device.example.com", true},
		{"*.example.com", "example.com", false}, // wildcard never matches the bare suffix
		{"*.example.com", "evilexample.com", false},
		{"*.example.com", "a.b.example.com", true},
	}
	for _, c := range cases {
		if got := matchHost(c.cn, c.host); got != c.want {
			t.Errorf("matchHost(%q, %q) = %v, want %v", c.cn, c.host, got, c.want)
		}
	}
}

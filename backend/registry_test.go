package backend

import "testing"

// stubBackend is a minimal Backend for registry tests.
type stubBackend struct {
	name string
}

func (s *stubBackend) Name() string          { return s.name }
func (s *stubBackend) Init() error           { return nil }
func (s *stubBackend) Close()                {}
func (s *stubBackend) Devices() []DeviceInfo { return nil }
func (s *stubBackend) OpenDevice(DeviceType) (Device, error) {
	return nil, ErrBackendNotAvailable
}

func TestRegisterAndGet(t *testing.T) {
	Register("stub", func() Backend { return &stubBackend{name: "stub"} })
	defer Unregister("stub")

	if !IsRegistered("stub") {
		t.Error("IsRegistered(stub) = false after Register")
	}
	b := Get("stub")
	if b == nil {
		t.Fatal("Get(stub) = nil")
	}
	if b.Name() != "stub" {
		t.Errorf("Name() = %q, want stub", b.Name())
	}
	if Get("missing") != nil {
		t.Error("Get(missing) should be nil")
	}
}

func TestUnregister(t *testing.T) {
	Register("temp", func() Backend { return &stubBackend{name: "temp"} })
	Unregister("temp")
	if IsRegistered("temp") {
		t.Error("IsRegistered(temp) = true after Unregister")
	}
}

func TestAvailable(t *testing.T) {
	Register("stub-a", func() Backend { return &stubBackend{name: "stub-a"} })
	defer Unregister("stub-a")

	found := false
	for _, name := range Available() {
		if name == "stub-a" {
			found = true
		}
	}
	if !found {
		t.Errorf("Available() = %v, missing stub-a", Available())
	}
}

func TestDefaultFallback(t *testing.T) {
	// No priority backend registered in this package's tests: Default
	// falls back to any registered backend.
	Register("fallback", func() Backend { return &stubBackend{name: "fallback"} })
	defer Unregister("fallback")

	b := Default()
	if b == nil {
		t.Fatal("Default() = nil with a registered backend")
	}

	if _, err := InitDefault(); err != nil {
		t.Errorf("InitDefault() error: %v", err)
	}
}

func TestDeviceTypeString(t *testing.T) {
	tests := []struct {
		t    DeviceType
		want string
	}{
		{DeviceTypeAny, "any"},
		{DeviceTypeGPU, "gpu"},
		{DeviceTypeCPU, "cpu"},
		{DeviceTypeAccelerator, "accelerator"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.t, got, tt.want)
		}
	}
}

func TestDeviceInfoHasExtension(t *testing.T) {
	info := DeviceInfo{Extensions: []string{"a", "b"}}
	if !info.HasExtension("a") {
		t.Error("HasExtension(a) = false")
	}
	if info.HasExtension("c") {
		t.Error("HasExtension(c) = true")
	}
}

package workflow

import (
	"testing"

	"github.com/antriq/api/internal/enum"
)

func TestResolve_Defaults(t *testing.T) {
	tests := []struct {
		businessType string
		wantProfile  string
	}{
		{enum.BusinessTypeRestaurant, enum.WorkflowProfileFullService},
		{enum.BusinessTypeCounter, enum.WorkflowProfileCounter},
		{enum.BusinessTypeCafe, enum.WorkflowProfileCafe},
	}
	for _, tt := range tests {
		p, err := Resolve(tt.businessType, "")
		if err != nil {
			t.Fatalf("Resolve(%q, \"\"): %v", tt.businessType, err)
		}
		if p.Name != tt.wantProfile {
			t.Errorf("Resolve(%q): got %v, want %v", tt.businessType, p.Name, tt.wantProfile)
		}
	}
}

func TestResolve_OverrideWins(t *testing.T) {
	// A restaurant running counter-style service.
	p, err := Resolve(enum.BusinessTypeRestaurant, enum.WorkflowProfileCounter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != enum.WorkflowProfileCounter {
		t.Errorf("override profile: got %v, want COUNTER_SERVICE", p.Name)
	}
}

func TestResolve_UnknownBusinessType(t *testing.T) {
	if _, err := Resolve("FOOD_TRUCK", ""); err == nil {
		t.Fatal("expected error for unknown business type")
	}
}

func TestResolve_UnknownOverride(t *testing.T) {
	if _, err := Resolve(enum.BusinessTypeRestaurant, "BESPOKE"); err == nil {
		t.Fatal("expected error for unknown override")
	}
}

func TestInitialStatus(t *testing.T) {
	for _, name := range []string{
		enum.WorkflowProfileFullService,
		enum.WorkflowProfileCounter,
		enum.WorkflowProfileCafe,
	} {
		p := profiles[name]
		if got := p.InitialStatus(); got != enum.TokenStatusWaiting {
			t.Errorf("%s initial status: got %v, want WAITING", name, got)
		}
	}
}

func TestNextStatus_FullService(t *testing.T) {
	p := profiles[enum.WorkflowProfileFullService]
	steps := []struct {
		current string
		next    string
		ok      bool
	}{
		{enum.TokenStatusWaiting, enum.TokenStatusCalled, true},
		{enum.TokenStatusCalled, enum.TokenStatusInProgress, true},
		{enum.TokenStatusInProgress, enum.TokenStatusReady, true},
		{enum.TokenStatusReady, enum.TokenStatusDone, true},
		{enum.TokenStatusDone, "", false},
		{enum.TokenStatusCancelled, "", false},
		{"BOGUS", "", false},
	}
	for _, tt := range steps {
		next, ok := p.NextStatus(tt.current)
		if ok != tt.ok || next != tt.next {
			t.Errorf("NextStatus(%q): got (%q, %v), want (%q, %v)", tt.current, next, ok, tt.next, tt.ok)
		}
	}
}

func TestNextStatus_CounterSkipsKitchen(t *testing.T) {
	p := profiles[enum.WorkflowProfileCounter]
	next, ok := p.NextStatus(enum.TokenStatusWaiting)
	if !ok || next != enum.TokenStatusReady {
		t.Errorf("counter WAITING next: got (%q, %v), want (READY, true)", next, ok)
	}
}

func TestNextStatus_CafeSkipsInProgress(t *testing.T) {
	p := profiles[enum.WorkflowProfileCafe]
	next, ok := p.NextStatus(enum.TokenStatusCalled)
	if !ok || next != enum.TokenStatusReady {
		t.Errorf("cafe CALLED next: got (%q, %v), want (READY, true)", next, ok)
	}
}

func TestValidTransition(t *testing.T) {
	p := profiles[enum.WorkflowProfileFullService]
	tests := []struct {
		current   string
		requested string
		want      bool
	}{
		{enum.TokenStatusWaiting, enum.TokenStatusCalled, true},
		{enum.TokenStatusWaiting, enum.TokenStatusReady, false}, // skipping
		{enum.TokenStatusReady, enum.TokenStatusCalled, false},  // backwards
		{enum.TokenStatusWaiting, enum.TokenStatusWaiting, false},
		{enum.TokenStatusWaiting, enum.TokenStatusCancelled, true},
		{enum.TokenStatusReady, enum.TokenStatusCancelled, true},
		{enum.TokenStatusDone, enum.TokenStatusCancelled, false},      // terminal
		{enum.TokenStatusCancelled, enum.TokenStatusCancelled, false}, // terminal
		{enum.TokenStatusDone, enum.TokenStatusWaiting, false},
	}
	for _, tt := range tests {
		if got := p.ValidTransition(tt.current, tt.requested); got != tt.want {
			t.Errorf("ValidTransition(%q, %q): got %v, want %v", tt.current, tt.requested, got, tt.want)
		}
	}
}

func TestValidTransition_CafeRejectsInProgress(t *testing.T) {
	p := profiles[enum.WorkflowProfileCafe]
	// IN_PROGRESS is not on the cafe path at all.
	if p.ValidTransition(enum.TokenStatusCalled, enum.TokenStatusInProgress) {
		t.Error("cafe path must reject IN_PROGRESS")
	}
	if !p.ValidTransition(enum.TokenStatusCalled, enum.TokenStatusReady) {
		t.Error("cafe CALLED -> READY should be valid")
	}
}

func TestAllowsOrderType(t *testing.T) {
	full := profiles[enum.WorkflowProfileFullService]
	counter := profiles[enum.WorkflowProfileCounter]

	if !full.AllowsOrderType(enum.OrderTypeDelivery) {
		t.Error("full service should allow DELIVERY")
	}
	if counter.AllowsOrderType(enum.OrderTypeDineIn) {
		t.Error("counter service should not allow DINE_IN")
	}
	if !counter.AllowsOrderType(enum.OrderTypeTakeaway) {
		t.Error("counter service should allow TAKEAWAY")
	}
}

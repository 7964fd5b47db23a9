package agent

import (
	"errors"
	"testing"

	"autopilot/internal/automation"
)

func TestParseActionFromProse(t *testing.T) {
	reply := "I can see the settings icon. I will click it now.\n\n```json\n" +
		`{"action":"click","x":120,"y":340,"button":"left"}` + "\n```\nDone."
	action, err := ParseAction(reply)
	if err != nil {
		t.Fatalf("ParseAction: %v", err)
	}
	if action.Kind != KindClick || action.X != 120 || action.Y != 340 || action.Button != automation.ButtonLeft {
		t.Fatalf("action = %+v", action)
	}
}

func TestParseActionKinds(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		check func(t *testing.T, a Action)
	}{
		{
			name:  "click defaults to left button",
			reply: `{"action":"click","x":1,"y":2}`,
			check: func(t *testing.T, a Action) {
				if a.Button != automation.ButtonLeft {
					t.Fatalf("button = %s", a.Button)
				}
			},
		},
		{
			name:  "double click",
			reply: `{"action":"double_click","x":3,"y":4}`,
			check: func(t *testing.T, a Action) {
				if a.Kind != KindDoubleClick || a.X != 3 || a.Y != 4 {
					t.Fatalf("action = %+v", a)
				}
			},
		},
		{
			name:  "move at origin",
			reply: `{"action":"move","x":0,"y":0}`,
			check: func(t *testing.T, a Action) {
				if a.Kind != KindMove || a.X != 0 || a.Y != 0 {
					t.Fatalf("action = %+v", a)
				}
			},
		},
		{
			name:  "type allows empty string",
			reply: `{"action":"type","text":""}`,
			check: func(t *testing.T, a Action) {
				if a.Kind != KindType || a.Text != "" {
					t.Fatalf("action = %+v", a)
				}
			},
		},
		{
			name:  "key with modifiers",
			reply: `{"action":"key","key":"q","modifiers":["cmd"]}`,
			check: func(t *testing.T, a Action) {
				if a.Key != "q" || len(a.Modifiers) != 1 {
					t.Fatalf("action = %+v", a)
				}
			},
		},
		{
			name:  "scroll defaults amount",
			reply: `{"action":"scroll","x":10,"y":20,"direction":"down"}`,
			check: func(t *testing.T, a Action) {
				if a.Direction != automation.ScrollDown || a.Amount != 3 {
					t.Fatalf("action = %+v", a)
				}
			},
		},
		{
			name:  "complete with message",
			reply: `{"action":"complete","message":"opened the panel"}`,
			check: func(t *testing.T, a Action) {
				if a.Kind != KindComplete || a.Message != "opened the panel" {
					t.Fatalf("action = %+v", a)
				}
			},
		},
		{
			name:  "error without message",
			reply: `{"action":"error"}`,
			check: func(t *testing.T, a Action) {
				if a.Kind != KindError || a.Message != "" {
					t.Fatalf("action = %+v", a)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			action, err := ParseAction(tc.reply)
			if err != nil {
				t.Fatalf("ParseAction: %v", err)
			}
			tc.check(t, action)
		})
	}
}

func TestParseActionErrors(t *testing.T) {
	cases := []struct {
		name  string
		reply string
	}{
		{"unknown kind", `{"action":"drag","x":1,"y":2}`},
		{"missing action field", `{"x":1,"y":2}`},
		{"click missing coords", `{"action":"click"}`},
		{"type missing text", `{"action":"type"}`},
		{"key missing key", `{"action":"key","modifiers":["cmd"]}`},
		{"scroll missing direction", `{"action":"scroll","x":1,"y":2}`},
		{"scroll bad direction", `{"action":"scroll","x":1,"y":2,"direction":"sideways"}`},
		{"scroll negative amount", `{"action":"scroll","x":1,"y":2,"direction":"up","amount":-1}`},
		{"click bad button", `{"action":"click","x":1,"y":2,"button":"fourth"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseAction(tc.reply); err == nil {
				t.Fatal("expected a parse error")
			}
		})
	}
}

func TestParseActionNoBraceVsUnbalanced(t *testing.T) {
	if _, err := ParseAction("I will click the button now."); !errors.Is(err, ErrNoActionJSON) {
		t.Fatalf("err = %v, want ErrNoActionJSON", err)
	}
	if _, err := ParseAction(`{"action":"click","x":1`); !errors.Is(err, ErrUnbalancedJSON) {
		t.Fatalf("err = %v, want ErrUnbalancedJSON", err)
	}
}

func TestExtractFirstBalancedObject(t *testing.T) {
	obj, err := extractJSONObject(`prefix {"a":{"b":1}} {"second":2}`)
	if err != nil {
		t.Fatalf("extractJSONObject: %v", err)
	}
	if obj != `{"a":{"b":1}}` {
		t.Fatalf("obj = %q", obj)
	}
}

func TestEffectful(t *testing.T) {
	effectful := []Kind{KindClick, KindDoubleClick, KindType, KindKey, KindScroll}
	for _, k := range effectful {
		if !(Action{Kind: k}).Effectful() {
			t.Errorf("%s should be effectful", k)
		}
	}
	for _, k := range []Kind{KindMove, KindComplete, KindError} {
		if (Action{Kind: k}).Effectful() {
			t.Errorf("%s should not be effectful", k)
		}
	}
}

func TestInverseScrollOnly(t *testing.T) {
	scroll := Action{Kind: KindScroll, X: 5, Y: 6, Direction: automation.ScrollDown, Amount: 4}
	inv, ok := scroll.Inverse()
	if !ok {
		t.Fatal("scroll should be reversible")
	}
	if inv.Direction != automation.ScrollUp || inv.Amount != 4 || inv.X != 5 {
		t.Fatalf("inverse = %+v", inv)
	}
	if _, ok := (Action{Kind: KindClick}).Inverse(); ok {
		t.Fatal("click must not be reversible")
	}
	if _, ok := (Action{Kind: KindType, Text: "x"}).Inverse(); ok {
		t.Fatal("type must not be reversible")
	}
}

package tokens

import "testing"

func TestEstimator_CountText(t *testing.T) {
	e := NewEstimator()

	count, err := e.CountText("anything", "twelve chars")
	if err != nil {
		t.Fatalf("CountText returned error: %v", err)
	}
	if count != 3 {
		t.Errorf("CountText = %d, want 3", count)
	}

	if !e.SupportsModel("completely-unknown-model") {
		t.Error("Estimator should support every model")
	}
}

func TestModelMatcher(t *testing.T) {
	m := NewModelMatcher([]string{"gpt-"}, []string{"davinci"})

	tests := []struct {
		model string
		want  bool
	}{
		{"gpt-4o", true},
		{"gpt-3.5-turbo", true},
		{"davinci", true},
		{"davinci-002", false},
		{"claude-3", false},
	}

	for _, tt := range tests {
		if got := m.Matches(tt.model); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestOpenAICounter_SupportsModel(t *testing.T) {
	c := NewOpenAICounter()

	tests := []struct {
		model string
		want  bool
	}{
		{"gpt-4o", true},
		{"GPT-4o", true},
		{"o1-mini", true},
		{"text-embedding-3-small", true},
		{"ada", true},
		{"claude-3-opus", false},
		{"llama-3", false},
	}

	for _, tt := range tests {
		if got := c.SupportsModel(tt.model); got != tt.want {
			t.Errorf("SupportsModel(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestOpenAICounter_CountText(t *testing.T) {
	c := NewOpenAICounter()

	count, err := c.CountText("gpt-4o", "hello world")
	if err != nil {
		t.Fatalf("CountText returned error: %v", err)
	}
	if count == 0 {
		t.Error("CountText = 0, want a positive token count")
	}

	empty, err := c.CountText("gpt-4o", "")
	if err != nil {
		t.Fatalf("CountText of empty string returned error: %v", err)
	}
	if empty != 0 {
		t.Errorf("CountText of empty string = %d, want 0", empty)
	}
}

func TestRegistry_CounterFor(t *testing.T) {
	r := NewRegistry()
	r.Register(NewOpenAICounter())

	if _, ok := r.CounterFor("gpt-4o").(*OpenAICounter); !ok {
		t.Errorf("CounterFor(gpt-4o) = %T, want *OpenAICounter", r.CounterFor("gpt-4o"))
	}
	if _, ok := r.CounterFor("some-custom-model").(*Estimator); !ok {
		t.Errorf("CounterFor(some-custom-model) = %T, want *Estimator", r.CounterFor("some-custom-model"))
	}
}

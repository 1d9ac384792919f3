package export

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"Dementia support plan v1.2", "Dementia-support-plan-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "care-plan"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},       // Spaces encoded as %20, not +
		{"test+sign", "test%2Bsign"},           // + signs are encoded
		{"special<>", "special%3C%3E"},         // Special chars encoded
		{"normal-text.txt", "normal-text.txt"}, // Unreserved chars pass through
		{"", ""},                               // Empty string
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRenderPlanHTML(t *testing.T) {
	data := TemplateData{
		Title:        "Dementia support plan",
		DisplayID:    "CP-2041",
		Status:       "active",
		ClientName:   "Margaret Hale",
		ProviderName: "CareLink Homecare",
		BranchName:   "North London",
		UpdatedAt:    time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		Staff: []TemplateStaff{
			{Name: "Nadia Osei", Role: "senior carer", IsPrimary: true},
			{Name: "Tom Briggs", Role: "carer"},
		},
		Visits: []TemplateVisit{
			{
				Start:  time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
				End:    time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC),
				Staff:  "Nadia Osei",
				Status: "scheduled",
				Notes:  "Morning medication",
			},
		},
		Risks: []TemplateRisk{
			{Category: "falls", Severity: "High", Summary: "Unsteady on stairs"},
		},
	}

	html, err := RenderPlanHTML(data)
	if err != nil {
		t.Fatalf("RenderPlanHTML() error = %v", err)
	}

	for _, want := range []string{
		"Dementia support plan",
		"CP-2041",
		"Margaret Hale",
		"CareLink Homecare",
		"Nadia Osei",
		"Morning medication",
		"Unsteady on stairs",
		"severity-high",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
}

func TestCoalescerCachesWithinTTL(t *testing.T) {
	c := NewCoalescer(time.Minute, 8)
	var calls atomic.Int32

	fn := func() (*Result, error) {
		calls.Add(1)
		return &Result{Data: []byte("pdf"), Filename: "plan.pdf"}, nil
	}

	for i := 0; i < 3; i++ {
		result, err := c.Do("cpl_1|pdf", fn)
		if err != nil {
			t.Fatalf("Do failed: %v", err)
		}
		if string(result.Data) != "pdf" {
			t.Errorf("unexpected result data %q", result.Data)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 generation, got %d", got)
	}
}

func TestCoalescerSharesInFlightCall(t *testing.T) {
	c := NewCoalescer(time.Minute, 8)
	var calls atomic.Int32
	release := make(chan struct{})

	fn := func() (*Result, error) {
		calls.Add(1)
		<-release
		return &Result{Data: []byte("pdf")}, nil
	}

	var wg sync.WaitGroup
	results := make([]*Result, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := c.Do("cpl_shared|pdf", fn)
			if err != nil {
				t.Errorf("Do failed: %v", err)
				return
			}
			results[i] = result
		}(i)
	}

	// Give the goroutines time to pile up behind the in-flight entry.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 generation for 5 concurrent callers, got %d", got)
	}
	for i, result := range results {
		if result == nil || string(result.Data) != "pdf" {
			t.Errorf("caller %d got unexpected result %+v", i, result)
		}
	}
}

func TestCoalescerDoesNotCacheErrors(t *testing.T) {
	c := NewCoalescer(time.Minute, 8)
	var calls atomic.Int32

	fail := func() (*Result, error) {
		calls.Add(1)
		return nil, errors.New("renderer crashed")
	}

	if _, err := c.Do("cpl_err|pdf", fail); err == nil {
		t.Fatal("expected error")
	}
	if _, err := c.Do("cpl_err|pdf", fail); err == nil {
		t.Fatal("expected error")
	}

	if got := calls.Load(); got != 2 {
		t.Errorf("expected failed generations to retry, got %d calls", got)
	}
}

func TestCoalescerBoundsEntries(t *testing.T) {
	c := NewCoalescer(time.Minute, 4)

	for i := 0; i < 20; i++ {
		key := string(rune('a' + i))
		_, err := c.Do(key, func() (*Result, error) {
			return &Result{Data: []byte(key)}, nil
		})
		if err != nil {
			t.Fatalf("Do failed: %v", err)
		}
	}

	if got := c.Len(); got > 4 {
		t.Errorf("expected at most 4 cached entries, got %d", got)
	}
}

func TestCoalescerInvalidate(t *testing.T) {
	c := NewCoalescer(time.Minute, 8)
	var calls atomic.Int32

	fn := func() (*Result, error) {
		calls.Add(1)
		return &Result{Data: []byte("pdf")}, nil
	}

	if _, err := c.Do("cpl_inv|pdf", fn); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	c.Invalidate("cpl_inv|pdf")
	if _, err := c.Do("cpl_inv|pdf", fn); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	if got := calls.Load(); got != 2 {
		t.Errorf("expected regeneration after invalidate, got %d calls", got)
	}
}

func TestCoalescerInvalidateMidFlightIsNotCached(t *testing.T) {
	c := NewCoalescer(time.Minute, 8)
	var calls atomic.Int32
	release := make(chan struct{})

	fn := func() (*Result, error) {
		calls.Add(1)
		<-release
		return &Result{Data: []byte("pdf")}, nil
	}

	done := make(chan *Result, 1)
	go func() {
		result, _ := c.Do("cpl_mid|pdf", fn)
		done <- result
	}()

	// The plan mutates while the render is still running.
	time.Sleep(20 * time.Millisecond)
	c.Invalidate("cpl_mid|pdf")
	close(release)

	if result := <-done; result == nil || string(result.Data) != "pdf" {
		t.Fatalf("in-flight caller got %+v", result)
	}

	// The stale render must not be served from cache.
	if _, err := c.Do("cpl_mid|pdf", func() (*Result, error) {
		calls.Add(1)
		return &Result{Data: []byte("pdf2")}, nil
	}); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected a fresh generation after mid-flight invalidate, got %d calls", got)
	}
}

package resolver

import (
	"testing"
)

func TestFirstMatch_OrderedFallback(t *testing.T) {
	rules, err := buildTokenRules("pepe-")
	if err != nil {
		t.Fatalf("buildTokenRules: %v", err)
	}

	tests := []struct {
		name     string
		content  string
		want     string
		wantRule string
		wantOK   bool
	}{
		{
			name:     "primary wins",
			content:  `<a href="/x">pepe-ab12cd34ef56</a>`,
			want:     "pepe-ab12cd34ef56",
			wantRule: "prefixed-token",
			wantOK:   true,
		},
		{
			name:     "primary wins even when fallback also matches",
			content:  `deadbeefdeadbeefdead pepe-ab12cd34ef56`,
			want:     "pepe-ab12cd34ef56",
			wantRule: "prefixed-token",
			wantOK:   true,
		},
		{
			name:     "fallback used when primary absent",
			content:  `token is deadbeefdeadbeefdead somewhere`,
			want:     "deadbeefdeadbeefdead",
			wantRule: "bare-hex",
			wantOK:   true,
		},
		{
			name:    "no match",
			content: `nothing to see here`,
			wantOK:  false,
		},
		{
			name:     "case insensitive",
			content:  `PEPE-AB12CD34EF56`,
			want:     "PEPE-AB12CD34EF56",
			wantRule: "prefixed-token",
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rule, ok := rules.FirstMatch(tt.content)
			if ok != tt.wantOK {
				t.Fatalf("FirstMatch ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("FirstMatch value = %q, want %q", got, tt.want)
			}
			if rule != tt.wantRule {
				t.Errorf("FirstMatch rule = %q, want %q", rule, tt.wantRule)
			}
		})
	}
}

func TestFirstMatch_Idempotent(t *testing.T) {
	rules, err := buildFinalRules(`https://video-downloads\.googleusercontent\.com/[^\s"'<>]+`)
	if err != nil {
		t.Fatalf("buildFinalRules: %v", err)
	}

	content := `x https://video-downloads.googleusercontent.com/abc https://cdn.other.example/file.mp4`
	first, firstRule, ok := rules.FirstMatch(content)
	if !ok {
		t.Fatal("expected a match")
	}
	for i := 0; i < 50; i++ {
		got, rule, ok := rules.FirstMatch(content)
		if !ok || got != first || rule != firstRule {
			t.Fatalf("run %d: got (%q, %q, %v), want (%q, %q, true)", i, got, rule, ok, first, firstRule)
		}
	}
}

func TestBuildFinalRules_Ordering(t *testing.T) {
	rules, err := buildFinalRules(`https://video-downloads\.googleusercontent\.com/[^\s"'<>]+`)
	if err != nil {
		t.Fatalf("buildFinalRules: %v", err)
	}
	if rules.Len() != 3 {
		t.Fatalf("expected 3 final rules, got %d", rules.Len())
	}

	// Looser host pattern catches what the exact host misses.
	v, rule, ok := rules.FirstMatch(`https://other.googleusercontent.com/xyz`)
	if !ok || rule != "host-substring" {
		t.Fatalf("got (%q, %q, %v), want host-substring match", v, rule, ok)
	}

	// Media extension is the last resort.
	v, rule, ok = rules.FirstMatch(`grab https://mirror.example.net/file.mp4?sig=1 now`)
	if !ok || rule != "media-extension" {
		t.Fatalf("got (%q, %q, %v), want media-extension match", v, rule, ok)
	}
	if v != "https://mirror.example.net/file.mp4?sig=1" {
		t.Errorf("media match = %q", v)
	}
}

func TestBuildDistributionRules_Fallback(t *testing.T) {
	rules, err := buildDistributionRules(`cdn\.video-leech\.pro/[a-f0-9:]+`)
	if err != nil {
		t.Fatalf("buildDistributionRules: %v", err)
	}

	v, rule, ok := rules.FirstMatch(`src="cdn.video-leech.pro/ab12:cd34"`)
	if !ok || rule != "configured-cdn" || v != "cdn.video-leech.pro/ab12:cd34" {
		t.Fatalf("got (%q, %q, %v)", v, rule, ok)
	}

	v, rule, ok = rules.FirstMatch(`src="cdn-east.files.example/abc/def"`)
	if !ok || rule != "generic-cdn" {
		t.Fatalf("got (%q, %q, %v), want generic-cdn match", v, rule, ok)
	}
}

func TestNewRule_InvalidPattern(t *testing.T) {
	if _, err := NewRule("bad", `[unclosed`); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

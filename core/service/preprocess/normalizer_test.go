package preprocess

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name         string
		subject      string
		body         string
		wantSubject  string
		wantBody     string
		wantCombined string
		wantErr      bool
	}{
		{
			name:         "plain text passes through",
			subject:      "Login problem",
			body:         "I cannot log in to my account",
			wantSubject:  "Login problem",
			wantBody:     "I cannot log in to my account",
			wantCombined: "Login problem I cannot log in to my account",
		},
		{
			name:         "html tags stripped",
			subject:      "Refund",
			body:         "<p>Please <b>refund</b> my order</p>",
			wantSubject:  "Refund",
			wantBody:     "Please refund my order",
			wantCombined: "Refund Please refund my order",
		},
		{
			name:         "urls masked",
			subject:      "Broken link",
			body:         "See https://example.com/page?id=1 for details",
			wantSubject:  "Broken link",
			wantBody:     "See <URL> for details",
			wantCombined: "Broken link See <URL> for details",
		},
		{
			name:         "www urls masked",
			subject:      "Link",
			body:         "visit www.example.com now",
			wantBody:     "visit <URL> now",
			wantSubject:  "Link",
			wantCombined: "Link visit <URL> now",
		},
		{
			name:         "emails masked",
			subject:      "Contact",
			body:         "reach me at john.doe@example.com please",
			wantSubject:  "Contact",
			wantBody:     "reach me at <EMAIL> please",
			wantCombined: "Contact reach me at <EMAIL> please",
		},
		{
			name:         "whitespace collapsed and trimmed",
			subject:      "  Hello   world  ",
			body:         "line one\n\n\tline two",
			wantSubject:  "Hello world",
			wantBody:     "line one line two",
			wantCombined: "Hello world line one line two",
		},
		{
			name:         "empty body allowed",
			subject:      "Just a subject",
			body:         "",
			wantSubject:  "Just a subject",
			wantBody:     "",
			wantCombined: "Just a subject",
		},
		{
			name:    "both empty after cleaning fails",
			subject: "  <div></div>  ",
			body:    "\t\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.subject, tt.body)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", got.Subject, tt.wantSubject)
			}
			if got.Body != tt.wantBody {
				t.Errorf("Body = %q, want %q", got.Body, tt.wantBody)
			}
			if got.Combined != tt.wantCombined {
				t.Errorf("Combined = %q, want %q", got.Combined, tt.wantCombined)
			}
		})
	}
}

func TestNormalizeTruncatesBodyTail(t *testing.T) {
	subject := "Short subject"
	body := strings.Repeat("a", MaxCanonicalLen+500)

	got, err := Normalize(subject, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len([]rune(got.Combined)) > MaxCanonicalLen {
		t.Errorf("Combined length = %d, want <= %d", len([]rune(got.Combined)), MaxCanonicalLen)
	}
	if !strings.HasPrefix(got.Combined, subject) {
		t.Error("subject prefix not preserved after truncation")
	}
}

func TestNormalizeBoundsSubject(t *testing.T) {
	subject := strings.Repeat("s", 600)
	got, err := Normalize(subject, "body text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len([]rune(got.Subject)) != 500 {
		t.Errorf("Subject length = %d, want 500", len([]rune(got.Subject)))
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	a, err := Normalize("Subject <b>x</b>", "Body https://x.io y@z.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Normalize("Subject <b>x</b>", "Body https://x.io y@z.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Combined != b.Combined {
		t.Errorf("normalization not deterministic: %q vs %q", a.Combined, b.Combined)
	}
}

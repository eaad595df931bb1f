package util

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCleanHTMLContent(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"non-string", 42, ""},
		{"nil", nil, ""},
		{"map", map[string]any{"a": "b"}, ""},
		{"empty", "", ""},
		{"plain text", "  hello \n\n world  ", "hello world"},
		{"list", "<ul><li>First</li><li>Second</li></ul>", "- First - Second"},
		{"paragraphs", "<p>One</p><p>Two</p>", "One Two"},
		{"style and nbsp", `<p style="color:red">Hello&nbsp;world</p><br>`, "Hello world"},
		{"emphasis", `<strong>Bold</strong> and <span class="x">span</span>`, "Bold and span"},
		{"unknown tags", `<div><a href="/x">link</a></div>`, "link"},
		{"entities", "Tom &amp; Jerry &quot;ok&quot; it&#39;s", `Tom &amp; Jerry "ok" it's`},
		{"double-encoded", "AT&amp;amp;T", "AT&amp;amp;T"},
		{"literal brackets", "a &lt;b&gt; c", "a &lt;b&gt; c"},
		{"malformed", "<p>unclosed <b>bold", "unclosed bold"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, CleanHTMLContent(c.in))
		})
	}
}

func TestCleanHTMLContentIdempotent(t *testing.T) {
	inputs := []string{
		"<ul><li>Buy <strong>milk</strong></li><li>Call   Lan</li></ul>",
		"<p style='x'>Tom &amp; Jerry</p>\n\n<p>a &lt;tag&gt;</p>",
		"Mô tả   công việc<br/>dòng hai",
		"AT&amp;amp;T",
		"x &amp;nbsp; y",
		"a &amp;quot;b&amp;quot;",
		`say "hi" &amp; it's`,
	}
	for _, in := range inputs {
		once := CleanHTMLContent(in)
		assert.Equal(t, once, CleanHTMLContent(once), "input %q", in)
	}
}

func TestConvertTimestamp(t *testing.T) {
	for _, in := range []any{0, 0.0, "", "0", nil, "abc", "12.5", false, map[string]any{}, []any{}} {
		_, ok := ConvertTimestampIn(in, time.UTC)
		assert.False(t, ok, "input %#v", in)
	}

	got, ok := ConvertTimestampIn(1700000000, time.UTC)
	assert.True(t, ok)
	assert.Equal(t, "2023-11-14", got)

	got, ok = ConvertTimestampIn("1700000000", time.FixedZone("ICT", 7*3600))
	assert.True(t, ok)
	assert.Equal(t, "2023-11-15", got)

	got, ok = ConvertTimestamp(float64(1700000000))
	assert.True(t, ok)
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`), got)
}

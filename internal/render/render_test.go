package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const report = `# Financial Insights Summary

## Monthly Overview
| Month | Income (₹) | Expenses (₹) | Savings (%) |
|-------|------------|--------------|-------------|
| April | 85000 | 52000 | 38.8 |

## Recommendations
- Cap food delivery at ₹3000
`

func TestRenderReport(t *testing.T) {
	html := string(New().HTML(report))

	assert.Contains(t, html, "<h1>Financial Insights Summary</h1>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<th>Income (₹)</th>")
	assert.Contains(t, html, "<td>85000</td>")
	assert.Contains(t, html, "<li>Cap food delivery at ₹3000</li>")
}

func TestRenderEscapesRawHTML(t *testing.T) {
	html := string(New().HTML("hello <script>alert(1)</script>"))

	assert.False(t, strings.Contains(html, "<script>"))
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestRenderErrorString(t *testing.T) {
	html := string(New().HTML("⚠️ AI did not return a response."))
	assert.Contains(t, html, "⚠️ AI did not return a response.")
}

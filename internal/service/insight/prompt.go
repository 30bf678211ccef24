package insight

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

const statementVar = "statement"

const systemPrompt = "You are a financial data analyst AI."

const userPrompt = `Analyze this UPI/Bank transaction statement and provide structured markdown insights.

Data:
{statement}

Please output in **structured markdown**:

# Financial Insights Summary

## Monthly Overview
| Month | Income (₹) | Expenses (₹) | Savings (%) |


## Trends
- [Trend observations]

## Recommendations
- [Cost control tips]

## Category Breakdown
| Category | Amount (₹) |
|-----------|------------|
`

func newReportTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	)
}

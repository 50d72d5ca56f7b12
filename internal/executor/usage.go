package executor

import (
	"github.com/duonganhthu43/ai-gateway/internal/model"
	"github.com/duonganhthu43/ai-gateway/internal/types"
)

// SummarizeUsage maps a raw provider usage record into the
// response-facing summary plus the cache-used flag. A nil record yields
// all-zero counters and a nil flag. Cost is always 0; pricing is an
// external concern.
func SummarizeUsage(u *model.Usage) (types.ChatCompletionUsage, *bool) {
	if u == nil {
		return types.ChatCompletionUsage{}, nil
	}

	cacheUsed := u.IsCacheUsed
	return types.ChatCompletionUsage{
		PromptTokens:            u.InputTokens,
		CompletionTokens:        u.OutputTokens,
		TotalTokens:             u.TotalTokens,
		PromptTokensDetails:     u.PromptTokensDetails,
		CompletionTokensDetails: u.CompletionTokensDetails,
		Cost:                    0,
	}, &cacheUsed
}

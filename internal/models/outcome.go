package models

// Outcome classifies the result of a call that depends on an external service.
type Outcome string

const (
	// OutcomeSuccess means the external call produced usable output.
	OutcomeSuccess Outcome = "success"
	// OutcomeDegraded means a safe substitute was produced instead.
	OutcomeDegraded Outcome = "degraded"
	// OutcomeFailed means nothing usable was produced.
	OutcomeFailed Outcome = "failed"
)

// ReplyMode selects how text replies are produced.
type ReplyMode string

const (
	ReplyModeTemplated ReplyMode = "templated"
	ReplyModeOpenAI    ReplyMode = "openai"
)

// ImageMode selects how images are produced.
type ImageMode string

const (
	ImageModeStock ImageMode = "stock"
	ImageModeAI    ImageMode = "ai"
)

// IsValidReplyMode checks if the given reply mode is supported.
func IsValidReplyMode(m ReplyMode) bool {
	switch m {
	case ReplyModeTemplated, ReplyModeOpenAI:
		return true
	default:
		return false
	}
}

// IsValidImageMode checks if the given image mode is supported.
func IsValidImageMode(m ImageMode) bool {
	switch m {
	case ImageModeStock, ImageModeAI:
		return true
	default:
		return false
	}
}

package llm

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// GOGO_MODE=MOCK swaps every summarization client for MockClient.
const (
	EnvGogoMode = "GOGO_MODE"
	ModeMock    = "MOCK"
)

// NewLLMClient returns a gateway client, or a MockClient in mock mode.
func NewLLMClient(baseURL, apiKey string, timeout time.Duration) LLMClient {
	if os.Getenv(EnvGogoMode) == ModeMock {
		log.Debug().Msg("mock mode, using mock LLM client")
		return NewMockClient()
	}
	return NewClient(baseURL, apiKey, timeout)
}

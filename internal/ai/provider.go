package ai

import "fmt"

// NewTransport builds the remote transport for a provider name
func NewTransport(provider string, cfg TransportConfig) (Transport, error) {
	switch provider {
	case "zhipu":
		return NewZhipuTransport(cfg), nil
	case "openai":
		return NewOpenAITransport(cfg), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", provider)
	}
}

// Components bundles what the pipeline needs from the AI layer. Client is nil
// for the offline lexicon provider, which cannot produce suggestions.
type Components struct {
	Enricher Enricher
	Client   *Client
}

// NewComponents wires an enricher for provider. mode "sentiment" restricts
// remote enrichment to sentiment classification.
func NewComponents(provider, mode string, cfg TransportConfig) (Components, error) {
	if provider == "lexicon" {
		return Components{Enricher: NewLexiconEnricher()}, nil
	}

	transport, err := NewTransport(provider, cfg)
	if err != nil {
		return Components{}, err
	}

	client := NewClient(transport)
	if mode == "sentiment" {
		return Components{Enricher: NewSentimentEnricher(client), Client: client}, nil
	}
	return Components{Enricher: client, Client: client}, nil
}

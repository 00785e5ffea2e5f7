package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/ai"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/config"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
	"github.com/joho/godotenv"
)

const (
	samplePost    = "这家快递的服务太差了，包裹延误一周还没人处理，我要投诉！"
	sampleArticle = "The city opened its new metro line on Monday, cutting commute times across the northern districts."
)

func main() {
	fmt.Println("🔍 Sentiment Analysis - AI Provider Connectivity Test")
	fmt.Println("=====================================================")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Printf("\n🧠 Provider: %s", cfg.AIProvider)
	if cfg.AIModel != "" {
		fmt.Printf(" (model %s)", cfg.AIModel)
	}
	fmt.Println()

	if cfg.AIProvider == config.ProviderLexicon {
		fmt.Println("⚠️  Lexicon provider runs offline, nothing to test")
		return
	}

	transport, err := ai.NewTransport(cfg.AIProvider, ai.TransportConfig{
		APIKey:      cfg.AIAPIKey,
		BaseURL:     cfg.AIBaseURL,
		Model:       cfg.AIModel,
		Temperature: cfg.AITemperature,
		Timeout:     cfg.AITimeout,
	})
	if err != nil {
		log.Fatalf("Failed to create transport: %v", err)
	}
	client := ai.NewClient(transport)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	fmt.Println("\n📡 Testing operations...")
	fmt.Println(strings.Repeat("-", 40))

	run("Sentiment", func() (string, []string, error) {
		res, err := client.ClassifySentiment(ctx, samplePost, models.SourceSocialPost)
		return fmt.Sprintf("%s (score %d, confidence %.2f)", res.Label, res.Score, res.Confidence), res.Degraded(), err
	})

	run("Keywords", func() (string, []string, error) {
		keywords, err := client.ExtractKeywords(ctx, samplePost, 5)
		words := make([]string, len(keywords))
		for i, kw := range keywords {
			words[i] = fmt.Sprintf("%s:%d", kw.Word, kw.Weight)
		}
		return strings.Join(words, ", "), nil, err
	})

	run("Summary", func() (string, []string, error) {
		summary, err := client.Summarize(ctx, sampleArticle, 60)
		return summary, nil, err
	})

	run("Category", func() (string, []string, error) {
		res, err := client.Categorize(ctx, sampleArticle)
		return fmt.Sprintf("%s (confidence %.2f)", res.Category, res.Confidence), res.Degraded(), err
	})

	var enriched ai.EnrichmentResult
	run("Comprehensive", func() (string, []string, error) {
		res, err := client.Enrich(ctx, samplePost, models.SourceSocialPost)
		enriched = res
		return fmt.Sprintf("%s / %s / %d keywords", res.Sentiment.Label, res.Category, len(res.Keywords)), res.Degraded(), err
	})

	run("Suggestion", func() (string, []string, error) {
		record := models.NewSocialPost("sample", samplePost, time.Now(), models.SocialPost{UserName: "sample_user"}).
			WithEnrichment(enriched.Enrichment())
		alert := models.AlertRecord{
			RuleName:    "投诉关键词",
			Level:       models.LevelHigh,
			ContentID:   record.ID,
			ContentType: record.Type,
			Reason:      "Matched keywords: 投诉",
		}
		suggestion, err := client.SuggestRemediation(ctx, alert, record)
		return suggestion, nil, err
	})

	fmt.Println("\n✅ AI connectivity test completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Println("   • Set AI_PROVIDER and AI_API_KEY in .env file")
	fmt.Println("   • Run the service with: go run ./cmd/server")
}

func run(name string, op func() (string, []string, error)) {
	fmt.Printf("🔸 Testing %s... ", name)

	result, degraded, err := op()
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}

	fmt.Printf("✅ SUCCESS\n")
	fmt.Printf("   📝 %s\n", result)
	if len(degraded) > 0 {
		fmt.Printf("   ⚠️  Defaulted fields: %s\n", strings.Join(degraded, ", "))
	}
}

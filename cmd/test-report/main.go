package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/ai"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/config"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/models"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/monitoring"
	"github.com/fanxinghelloworld/sentiment-analysis-system/internal/storage"
	"github.com/sirupsen/logrus"
)

const outputDir = "test_output"

// TestNotificationService prints alerts and reports to the terminal
type TestNotificationService struct{}

func (t *TestNotificationService) SendReport(report *models.Report) error {
	stats := report.Statistics

	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Printf("📊 SENTIMENT %s REPORT\n", strings.ToUpper(report.Period))
	fmt.Printf("Generated: %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n📈 Records: %d (media %d, social %d, unanalyzed %d)\n",
		stats.Total, stats.MediaCount, stats.SocialCount, stats.Unanalyzed)
	fmt.Printf("📅 Today %d | Yesterday %d | Last %d days %d\n",
		stats.TodayCount, stats.YesterdayCount, stats.WindowDays, stats.WindowCount)

	dist := stats.SentimentDistribution
	fmt.Println("\n😊 Sentiment Breakdown:")
	fmt.Printf("   • Positive: %d\n", dist.Positive)
	fmt.Printf("   • Neutral: %d\n", dist.Neutral)
	fmt.Printf("   • Negative: %d\n", dist.Negative)

	if len(report.HotKeywords) > 0 {
		fmt.Println("\n🔥 Hot Keywords:")
		for _, kw := range report.HotKeywords {
			fmt.Printf("   • %s (count %d, weight %d)\n", kw.Word, kw.Count, kw.Weight)
		}
	}

	if len(report.TopSources) > 0 {
		fmt.Println("\n🌐 Top Sources:")
		for _, source := range report.TopSources {
			fmt.Printf("   • %s\n", source)
		}
	}

	if len(report.OpenAlerts) > 0 {
		fmt.Printf("\n🚨 Open Alerts (%d):\n", len(report.OpenAlerts))
		for i, alert := range report.OpenAlerts {
			fmt.Printf("\n   %d. [%s] %s\n", i+1, strings.ToUpper(string(alert.Level)), alert.RuleName)
			fmt.Printf("      📝 %s\n", alert.Reason)
			fmt.Printf("      🔗 Record: %s (%s)\n", alert.ContentID, alert.ContentType)
			if alert.Suggestion != "" {
				fmt.Printf("      💡 %s\n", alert.Suggestion)
			}
		}
	}

	if len(report.NegativeRecords) > 0 {
		fmt.Println("\n👎 Most Negative Records:")
		for i, record := range report.NegativeRecords {
			fmt.Printf("\n   %d. %s\n", i+1, displayTitle(record))
			fmt.Printf("      🌐 %s | 💭 Score: %d\n", record.Origin(), record.Enrichment.SentimentScore)
			fmt.Printf("      🕒 Posted: %s\n", record.PublishedAt.Format("2006-01-02 15:04"))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	return nil
}

func (t *TestNotificationService) SendAlert(alert *models.AlertRecord) error {
	fmt.Println("\n🚨 ALERT")
	fmt.Printf("Level: %s\n", alert.Level)
	fmt.Printf("Rule: %s\n", alert.RuleName)
	fmt.Printf("Reason: %s\n", alert.Reason)
	return nil
}

func displayTitle(record models.ContentRecord) string {
	if title := record.Title(); title != "" {
		return title
	}
	runes := []rune(record.Content)
	if len(runes) > 40 {
		return string(runes[:40]) + "..."
	}
	return record.Content
}

func sampleRecords(now time.Time) []models.ContentRecord {
	return []models.ContentRecord{
		models.NewSocialPost("test_social_1", "这家快递太差了，包裹延误一周没人管，我要投诉！", now.Add(-2*time.Hour), models.SocialPost{
			UserID:       "u1001",
			UserName:     "愤怒的网友",
			Followers:    320,
			TopicTags:    []string{"快递", "投诉"},
			Location:     "上海",
			LikeCount:    56,
			CommentCount: 21,
			RepostCount:  9,
		}),
		models.NewSocialPost("test_social_2", "新版本的应用非常好用，界面清爽，点赞！", now.Add(-5*time.Hour), models.SocialPost{
			UserID:    "u1002",
			UserName:  "科技爱好者",
			Verified:  true,
			Followers: 12800,
			TopicTags: []string{"应用", "体验"},
			LikeCount: 430,
		}),
		models.NewSocialPost("test_social_3", "Terrible outage again today, the service has been down for hours. Awful support.", now.Add(-7*time.Hour), models.SocialPost{
			UserID:      "u2001",
			UserName:    "ops_watcher",
			Followers:   1500,
			TopicTags:   []string{"outage"},
			RepostCount: 88,
		}),
		models.NewMediaArticle("test_media_1", "市政府宣布新建三条地铁线路，预计将大幅缓解城市交通压力，市民普遍表示满意。", now.Add(-10*time.Hour), models.MediaArticle{
			Title:     "三条地铁新线获批",
			Source:    "city-news.example.com",
			Author:    "李记者",
			URL:       "https://city-news.example.com/articles/1",
			MediaType: "news",
			Category:  "城市",
			Tags:      []string{"地铁", "交通"},
			ViewCount: 5200,
		}),
		models.NewMediaArticle("test_media_2", "Regulators opened an investigation after a data leak exposed customer records. Critics called the response poor and slow.", now.Add(-26*time.Hour), models.MediaArticle{
			Title:      "Retailer faces probe over data leak",
			Source:     "business.example.com",
			Author:     "J. Smith",
			URL:        "https://business.example.com/data-leak",
			MediaType:  "news",
			Category:   "business",
			Tags:       []string{"privacy"},
			ViewCount:  18000,
			ShareCount: 640,
		}),
		models.NewMediaArticle("test_media_3", "A practical guide to saving energy at home this winter, with simple tips for every household.", now.Add(-50*time.Hour), models.MediaArticle{
			Title:     "Winter energy saving guide",
			Source:    "lifestyle.example.com",
			MediaType: "blog",
			Category:  "lifestyle",
			ViewCount: 900,
		}),
	}
}

func main() {
	fmt.Println("🤖 Sentiment Analysis - Test Report Generator")
	fmt.Println("=============================================")

	logrus.SetLevel(logrus.WarnLevel)

	cfg := &config.Config{
		ReportSchedule:    "weekly",
		TimeZone:          "UTC",
		StatsWindowDays:   7,
		EnrichBatchSize:   10,
		EnrichConcurrency: 2,
		SuggestionLevel:   models.LevelHigh,
		NotifyLevel:       models.LevelHigh,
	}

	ctx := context.Background()

	store := storage.NewMemoryStore()
	archive, err := storage.NewFileArchive(outputDir)
	if err != nil {
		fmt.Printf("❌ Error creating archive: %v\n", err)
		os.Exit(1)
	}

	notifications := &TestNotificationService{}
	service := monitoring.NewService(cfg, store, archive, notifications, ai.NewLexiconEnricher(), nil)

	if _, err := service.SeedDefaultRules(ctx); err != nil {
		fmt.Printf("❌ Error seeding rules: %v\n", err)
		os.Exit(1)
	}

	records := sampleRecords(time.Now())
	if err := store.UpsertRecords(ctx, records); err != nil {
		fmt.Printf("❌ Error storing records: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n📊 Running pipeline over %d sample records...\n", len(records))

	summary, err := service.RunPipeline(ctx)
	if err != nil {
		fmt.Printf("❌ Error running pipeline: %v\n", err)
		os.Exit(1)
	}

	data, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Printf("\n🧾 Run summary:\n%s\n", data)

	// Generate report (outputs to terminal and archives JSON)
	if _, err := service.GenerateReport(ctx, ""); err != nil {
		fmt.Printf("❌ Error generating report: %v\n", err)
		os.Exit(1)
	}

	saved, err := archive.List(ctx, "report-")
	if err == nil && len(saved) > 0 {
		fmt.Printf("\n💾 Report saved to: %s/%s\n", outputDir, saved[len(saved)-1])
	}

	fmt.Println("\n✅ Test report generation completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Println("   • Check the 'test_output' directory for saved JSON reports")
	fmt.Println("   • Run 'go test ./internal/monitoring -v' for more detailed tests")
	fmt.Println("   • Configure an AI provider and run the service with 'go run ./cmd/server'")
}

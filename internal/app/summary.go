package app

import (
	"fmt"
	"strings"

	"tradedesk/internal/config"
	"tradedesk/internal/reconcile"
)

type StartupSummary struct {
	HTTPAddr      string
	CacheEnabled  bool
	CacheDriver   string
	DefaultSource string
	ChunkDays     int
	MaxChunks     int
	SingleFlight  bool
	SplitCloses   bool
	Sources       []SourceDetail
}

type SourceDetail struct {
	Name       string
	Kind       string
	ChunkDelay string
}

func newStartupSummary(cfg *config.Config, rec *reconcile.Reconciler, specs []reconcile.SourceSpec) *StartupSummary {
	s := &StartupSummary{
		HTTPAddr:      cfg.App.HTTPAddr,
		CacheEnabled:  rec != nil && rec.CacheEnabled(),
		CacheDriver:   cfg.Cache.Driver,
		DefaultSource: cfg.Fetch.DefaultExchange,
		ChunkDays:     cfg.Fetch.ChunkDays,
		MaxChunks:     cfg.Fetch.MaxChunks,
		SingleFlight:  cfg.Fetch.SingleFlight,
		SplitCloses:   cfg.Fetch.SplitCloses,
	}
	for _, spec := range specs {
		if spec.Source == nil {
			continue
		}
		s.Sources = append(s.Sources, SourceDetail{
			Name:       spec.Source.Name(),
			Kind:       spec.Source.Kind().String(),
			ChunkDelay: spec.ChunkDelay.String(),
		})
	}
	return s
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[服务 (SERVER)]")
	fmt.Printf("  监听地址: %s\n", s.HTTPAddr)
	fmt.Printf("  默认交易所: %s\n", s.DefaultSource)
	fmt.Println()

	fmt.Println("[缓存 (CACHE)]")
	if s.CacheEnabled {
		fmt.Printf("  状态: 已启用 (%s)\n", s.CacheDriver)
	} else {
		fmt.Println("  状态: 未启用，直连交易所")
	}
	fmt.Printf("  分块: %d 天 x 最多 %d 块\n", s.ChunkDays, s.MaxChunks)
	fmt.Printf("  合并并发请求: %v\n", s.SingleFlight)
	fmt.Printf("  多仓位拆分平仓: %v\n", s.SplitCloses)
	fmt.Println()

	fmt.Println("[数据源 (SOURCES)]")
	names := make([]string, 0, len(s.Sources))
	for _, src := range s.Sources {
		names = append(names, src.Name)
	}
	fmt.Printf("  已启用: %s\n", formatList(names))
	for _, src := range s.Sources {
		fmt.Printf("  > %s (%s, 间隔 %s)\n", src.Name, src.Kind, src.ChunkDelay)
	}
	fmt.Println(strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

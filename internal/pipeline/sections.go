package pipeline

// SectionType names a produced report section.
type SectionType string

const (
	SectionMarketReport       SectionType = "market_report"
	SectionSentimentReport    SectionType = "sentiment_report"
	SectionNewsReport         SectionType = "news_report"
	SectionFundamentalsReport SectionType = "fundamentals_report"
	SectionInvestmentPlan     SectionType = "investment_plan"
	SectionTraderPlan         SectionType = "trader_investment_plan"
	SectionFinalDecision      SectionType = "final_trade_decision"
)

// Agent names, matching the pipeline's roster.
const (
	AgentMarketAnalyst       = "market_analyst"
	AgentSocialAnalyst       = "social_analyst"
	AgentNewsAnalyst         = "news_analyst"
	AgentFundamentalsAnalyst = "fundamentals_analyst"
	AgentResearchManager     = "research_manager"
	AgentTrader              = "trader"
	AgentPortfolioManager    = "portfolio_manager"
)

// SectionUpdate is one report section extracted from a chunk, attributed to
// the agent that produced it.
type SectionUpdate struct {
	Section SectionType
	Agent   string
	Content string
}

// sectionBinding maps one chunk field to its (agent, section) pair.
type sectionBinding struct {
	section SectionType
	agent   string
	extract func(*Chunk) string
}

// sectionBindings is the closed chunk-field → (agent, section) table. Every
// content-bearing Chunk field must appear here exactly once.
var sectionBindings = []sectionBinding{
	{SectionMarketReport, AgentMarketAnalyst, func(c *Chunk) string { return c.MarketReport }},
	{SectionSentimentReport, AgentSocialAnalyst, func(c *Chunk) string { return c.SentimentReport }},
	{SectionNewsReport, AgentNewsAnalyst, func(c *Chunk) string { return c.NewsReport }},
	{SectionFundamentalsReport, AgentFundamentalsAnalyst, func(c *Chunk) string { return c.FundamentalsReport }},
	{SectionInvestmentPlan, AgentResearchManager, func(c *Chunk) string {
		if c.InvestmentDebate == nil {
			return ""
		}
		return c.InvestmentDebate.JudgeDecision
	}},
	{SectionTraderPlan, AgentTrader, func(c *Chunk) string { return c.TraderInvestmentPlan }},
	{SectionFinalDecision, AgentPortfolioManager, func(c *Chunk) string {
		if c.FinalTradeDecision != "" {
			return c.FinalTradeDecision
		}
		if c.RiskDebate != nil {
			return c.RiskDebate.JudgeDecision
		}
		return ""
	}},
}

// Sections returns the report sections present and non-empty in this chunk,
// in pipeline order.
func (c *Chunk) Sections() []SectionUpdate {
	var updates []SectionUpdate
	for _, b := range sectionBindings {
		content := b.extract(c)
		if content == "" {
			continue
		}
		updates = append(updates, SectionUpdate{
			Section: b.section,
			Agent:   b.agent,
			Content: content,
		})
	}
	return updates
}

// AgentForAnalyst maps a selected-analyst name ("market", "social", "news",
// "fundamentals") to its pipeline agent name. Unknown names map to themselves
// so callers can pass full agent names too.
func AgentForAnalyst(analyst string) string {
	switch analyst {
	case "market":
		return AgentMarketAnalyst
	case "social":
		return AgentSocialAnalyst
	case "news":
		return AgentNewsAnalyst
	case "fundamentals":
		return AgentFundamentalsAnalyst
	}
	return analyst
}

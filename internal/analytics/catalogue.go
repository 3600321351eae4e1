package analytics

// ProviderInfo is a static, display-oriented description of one
// supported provider, not derived from any query. It backs both the
// unauthenticated /v1/providers catalogue and the provider list
// embedded in /v1/overview.
type ProviderInfo struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Models      []string `json:"models"`
	PricingNote string   `json:"pricing_note"`
	SpeedRating string   `json:"speed_rating"`
	CostRating  string   `json:"cost_rating"`
	IconColor   string   `json:"icon_color"`
}

// providerCatalogue is the fixed provider list, mirroring
// original_source's hardcoded /v1/providers response. It is not read
// from the database: the catalogue describes the gateway's own adapter
// set, not usage.
var providerCatalogue = []ProviderInfo{
	{
		Name:        "openai",
		DisplayName: "OpenAI",
		Description: "Reliable general performance. Best for fast responses and high quality.",
		Models:      []string{"gpt-3.5-turbo", "gpt-4", "gpt-4-turbo-preview"},
		PricingNote: "$0.0015/1K input, $0.002/1K output (GPT-3.5). GPT-4: $0.03/$0.06",
		SpeedRating: "fastest",
		CostRating:  "moderate",
		IconColor:   "#10a37f",
	},
	{
		Name:        "deepseek",
		DisplayName: "DeepSeek",
		Description: "Cost-effective operations. Best for high-volume, cost-sensitive tasks.",
		Models:      []string{"deepseek-chat", "deepseek-coder"},
		PricingNote: "$0.00014/1K input, $0.00028/1K output (cheapest option)",
		SpeedRating: "fast",
		CostRating:  "cheapest",
		IconColor:   "#f59e0b",
	},
	{
		Name:        "huggingface",
		DisplayName: "HuggingFace",
		Description: "Open-source models. Best for reasoning tasks and cost-free operations.",
		Models:      []string{"llama-3", "mixtral", "qwen"},
		PricingNote: "Free (via Inference API)",
		SpeedRating: "moderate",
		CostRating:  "free",
		IconColor:   "#8b5cf6",
	},
}

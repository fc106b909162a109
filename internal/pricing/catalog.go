package pricing

import "sort"

// Provider names.
const (
	ProviderRunware   = "runware"
	ProviderReplicate = "replicate"
)

type Media string

const (
	MediaImage Media = "image"
	MediaVideo Media = "video"
)

type Resolution struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Tier   string `json:"tier"`
	// Durations restricts which clip lengths this resolution supports.
	// Empty means every model duration.
	Durations []int `json:"durations,omitempty"`
}

type Model struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Provider      string       `json:"provider"`
	ProviderModel string       `json:"provider_model"`
	Media         Media        `json:"media"`
	Durations     []int        `json:"durations,omitempty"`
	Resolutions   []Resolution `json:"resolutions,omitempty"`
	Audio         bool         `json:"audio"`
	ImageInput    bool         `json:"image_input"`
	Price         Rule         `json:"-"`
}

// Catalog maps model id to its definition.
type Catalog map[string]Model

// Sorted returns the models ordered by media then id.
func (c Catalog) Sorted() []Model {
	out := make([]Model, 0, len(c))
	for _, m := range c {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Media != out[j].Media {
			return out[i].Media < out[j].Media
		}
		return out[i].ID < out[j].ID
	})
	return out
}

var (
	landscapePortrait = []Resolution{
		{Width: 1280, Height: 720, Tier: "720p"},
		{Width: 720, Height: 1280, Tier: "720p"},
		{Width: 1920, Height: 1080, Tier: "1080p"},
		{Width: 1080, Height: 1920, Tier: "1080p"},
	}
	soraResolutions = append(append([]Resolution{}, landscapePortrait...),
		Resolution{Width: 1080, Height: 1080, Tier: "1080p"})
)

// DefaultCatalog is the production price list. Prices are the providers'
// published USD rates.
func DefaultCatalog() Catalog {
	models := []Model{
		{
			ID: "flux-schnell", Name: "FLUX.1 Schnell", Provider: ProviderRunware, ProviderModel: "runware:100@1",
			Media: MediaImage, ImageInput: true, Price: FlatUSD("0.0013"),
		},
		{
			ID: "flux-dev", Name: "FLUX.1 Dev", Provider: ProviderRunware, ProviderModel: "runware:101@1",
			Media: MediaImage, ImageInput: true, Price: FlatUSD("0.0038"),
		},
		{
			ID: "seedream-4", Name: "Seedream 4.0", Provider: ProviderRunware, ProviderModel: "bytedance:5@0",
			Media: MediaImage, ImageInput: true, Price: FlatUSD("0.03"),
		},
		{
			ID: "nano-banana", Name: "Nano Banana", Provider: ProviderReplicate, ProviderModel: "google/nano-banana",
			Media: MediaImage, ImageInput: true, Price: FlatUSD("0.039"),
		},
		{
			ID: "veo-3-fast", Name: "Google Veo 3 Fast", Provider: ProviderRunware, ProviderModel: "google:3@1",
			Media: MediaVideo, Durations: []int{8}, Resolutions: landscapePortrait,
			Audio: true, ImageInput: true, Price: USDByAudio("1.20", "0.80"),
		},
		{
			ID: "seedance-pro", Name: "Seedance 1.0 Pro", Provider: ProviderRunware, ProviderModel: "bytedance:2@1",
			Media: MediaVideo, Durations: []int{5, 10},
			Resolutions: []Resolution{
				{Width: 864, Height: 480, Tier: "480p"},
				{Width: 736, Height: 544, Tier: "544p"},
				{Width: 640, Height: 640, Tier: "640p"},
				{Width: 1920, Height: 1088, Tier: "1080p"},
				{Width: 1664, Height: 1248, Tier: "1248p"},
				{Width: 1440, Height: 1440, Tier: "1440p"},
			},
			ImageInput: true, Price: USDByDuration(map[int]string{5: "0.484", 10: "0.968"}),
		},
		{
			ID: "seedance-lite", Name: "Seedance 1.0 Lite", Provider: ProviderRunware, ProviderModel: "bytedance:1@1",
			Media: MediaVideo, Durations: []int{5, 10},
			Resolutions: []Resolution{
				{Width: 864, Height: 480, Tier: "480p"},
				{Width: 736, Height: 544, Tier: "544p"},
				{Width: 640, Height: 640, Tier: "640p"},
				{Width: 1248, Height: 704, Tier: "704p"},
				{Width: 1120, Height: 832, Tier: "832p"},
				{Width: 960, Height: 960, Tier: "960p"},
			},
			ImageInput: true, Price: USDByDuration(map[int]string{5: "0.173", 10: "0.346"}),
		},
		{
			ID: "hailuo-02", Name: "MiniMax Hailuo 02", Provider: ProviderRunware, ProviderModel: "minimax:3@1",
			Media: MediaVideo, Durations: []int{6, 10},
			Resolutions: []Resolution{
				{Width: 1366, Height: 768, Tier: "768p", Durations: []int{6, 10}},
				{Width: 1920, Height: 1080, Tier: "1080p", Durations: []int{6}},
			},
			ImageInput: true,
			Price:      USDByTierDuration(map[string]string{"768p-6s": "0.336", "768p-10s": "0.56", "1080p-6s": "0.49"}),
		},
		{
			ID: "sora-2", Name: "OpenAI Sora 2", Provider: ProviderRunware, ProviderModel: "openai:3@1",
			Media: MediaVideo, Durations: []int{5, 10, 15, 20}, Resolutions: soraResolutions,
			Audio: true, Price: USDByTier(map[string]string{"720p": "2.50", "1080p": "3.50"}),
		},
		{
			ID: "sora-2-pro", Name: "OpenAI Sora 2 Pro", Provider: ProviderRunware, ProviderModel: "openai:3@2",
			Media: MediaVideo, Durations: []int{5, 10, 15, 20},
			Resolutions: append(append([]Resolution{}, soraResolutions...), Resolution{Width: 3840, Height: 2160, Tier: "4k"}),
			Audio:       true,
			Price:       USDByTier(map[string]string{"720p": "4.00", "1080p": "5.50", "4k": "8.00"}),
		},
	}
	c := make(Catalog, len(models))
	for _, m := range models {
		c[m.ID] = m
	}
	return c
}

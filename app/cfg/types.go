package cfg

type Cfg struct {
	// Telegram transport
	TelegramBotToken string
	TelegramGroupID  string
	GeneralTopicID   int64

	// Storage
	DBPath         string
	CategoriesFile string

	// Scraping
	ResultsWanted    int
	Location         string
	MaxRetries       int
	RetryDelayBase   int // seconds
	ScrapeDelayMin   float64
	ScrapeDelayMax   float64
	FetchTimeout     int // seconds
	AdzunaAppID      string
	AdzunaAppKey     string
	AdzunaCountry    string
	AdzunaMaxResults int
	ForceAllSources  bool

	// Retention
	MaxAgeDays      int
	RetentionDays   int
	CacheWindowDays int

	// Scheduling
	SkipStartupRun bool
	DigestHour     int
	SendDelay      float64 // seconds between sends

	// HTTP server
	Port         string
	APIAccessKey string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string

	// Operational command (positional)
	Command  string
	Category string
}

package database

// FaultRecord is a persisted diagnosis entry in the knowledge base.
type FaultRecord struct {
	ID                  int64
	DeviceType          string
	Manufacturer        string
	Model               string
	FaultDescription    string
	Symptoms            *string
	ErrorCodes          *string
	RootCause           string
	Solution            string
	PartsRequired       []string // comma-joined at rest
	EstimatedRepairTime *string
	Difficulty          string // easy | medium | hard | expert
	Views               int
	Helpful             int
	NotHelpful          int
	Provenance          string // admin-entered | ai-synthesized | web-discovered
	SourceDocumentID    *int64
	SourceWebsite       *string
	CreatedAt           *string
}

// SearchSource is an external website or feed configured for automated search.
type SearchSource struct {
	ID             int64
	Name           string
	URL            string
	SourceType     string // website | forum | manual | feed
	IsActive       bool
	RespectsRobots bool
	RequiresAuth   bool
	AuthKeyEnv     *string
	LastScraped    *string
}

// QueryHistory is an append-only audit record of a completed request.
type QueryHistory struct {
	ID              int64
	AccountID       int64
	QueryText       string
	DeviceType      *string
	Manufacturer    *string
	Model           *string
	SearchPerformed bool
	FaultIDs        []int64
	Cost            int
	CreatedAt       *string
}

// Account is a caller identity with a role and a remaining-query balance.
type Account struct {
	ID        int64
	Name      string
	Role      string // user | admin
	Balance   int
	CreatedAt *string
}

// Document holds already-extracted plain text uploaded by an account.
type Document struct {
	ID            int64
	OwnerID       int64
	Name          string
	ExtractedText string
	CreatedAt     *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalFaults       int
	SynthesizedFaults int
	DiscoveredFaults  int
	TotalSources      int
	ActiveSources     int
	TotalQueries      int
	TotalDocuments    int
	TotalAccounts     int
}

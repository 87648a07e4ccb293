package synth

// Request describes one fault-diagnosis request. It is transient: nothing
// here is persisted except through the learning writer.
type Request struct {
	AccountID        int64
	DeviceType       string
	Manufacturer     string
	Model            string
	FaultDescription string
	Symptoms         string
	ErrorCodes       string
	DocumentIDs      []int64
	Save             bool
}

// Diagnosis is the schema-validated payload returned by the generative-text
// service. All fields are required; difficulty must be one of the known
// levels; unknown fields are rejected outright.
type Diagnosis struct {
	RootCause           string   `json:"rootCause"`
	Solution            string   `json:"solution"`
	PartsRequired       []string `json:"partsRequired"`
	EstimatedRepairTime string   `json:"estimatedRepairTime"`
	Difficulty          string   `json:"difficulty"`
	References          []string `json:"references"`
}

// Difficulties enumerates the accepted difficulty levels.
var Difficulties = []string{"easy", "medium", "hard", "expert"}

// ValidDifficulty reports whether d is an accepted difficulty level.
func ValidDifficulty(d string) bool {
	for _, v := range Difficulties {
		if d == v {
			return true
		}
	}
	return false
}

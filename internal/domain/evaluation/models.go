package evaluation

import "time"

type GateState struct {
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

type Bucket struct {
	ID          string    `json:"id"`
	Year        int       `json:"year"`
	Month       int       `json:"month"`
	CreatedAt   time.Time `json:"createdAt"`
	RecordCount int       `json:"recordCount"`
}

func (b Bucket) Period() Period {
	return Period{Year: b.Year, Month: b.Month}
}

func (b Bucket) Name() string {
	return b.Period().Name()
}

// Record is a stored evaluation. Year and Month are fixed at creation.
type Record struct {
	ID              string     `json:"id"`
	CreatedAt       time.Time  `json:"createdAt"`
	Notes           string     `json:"notes"`
	Year            int        `json:"year"`
	Month           int        `json:"month"`
	SupervisorID    string     `json:"supervisorId"`
	EmployeeID      string     `json:"employeeId"`
	BucketID        string     `json:"bucketId"`
	SupervisorEmail string     `json:"supervisorEmail"`
	EmployeeName    string     `json:"employeeName"`
	EmployeeCode    string     `json:"employeeCode"`
	Responses       []Response `json:"responses"`
}

func (r Record) Period() Period {
	return Period{Year: r.Year, Month: r.Month}
}

// TotalScore sums the scored responses.
func (r Record) TotalScore() int {
	total := 0
	for _, resp := range r.Responses {
		if resp.Score != nil {
			total += *resp.Score
		}
	}
	return total
}

// AverageScore is the mean over scored responses; ok is false when none are scored.
func (r Record) AverageScore() (avg float64, ok bool) {
	count := 0
	total := 0
	for _, resp := range r.Responses {
		if resp.Score != nil {
			total += *resp.Score
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return float64(total) / float64(count), true
}

// Response snapshots the question and answer texts as they read at submission.
type Response struct {
	ID            string `json:"id"`
	QuestionID    string `json:"questionId"`
	AnswerID      string `json:"answerId"`
	QuestionText  string `json:"questionText"`
	QuestionOrder int    `json:"questionOrder"`
	AnswerText    string `json:"answerText"`
	Score         *int   `json:"score"`
}

type Filter struct {
	Year         int
	Month        int
	SupervisorID string
	EmployeeID   string
}

// Submission is the input of the gated submission entry point. Answers maps
// question id to answer id.
type Submission struct {
	ActorID   string
	SubjectID string
	Notes     string
	Answers   map[string]string
}

type Subject struct {
	ID           string
	Name         string
	Code         string
	SupervisorID string
	Archived     bool
}

type Actor struct {
	ID       string
	Email    string
	Role     string
	Archived bool
}

type QuestionSpec struct {
	ID         string
	Text       string
	OrderIndex int
	Answers    []AnswerSpec
}

type AnswerSpec struct {
	ID    string
	Text  string
	Score *int
}

package models

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Job statuses.
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Job represents an async operation (migration preview/run, ownership change, report).
type Job struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"` // "migration-preview", "migration-run", "ownership-change", ...
	EnvironmentID string     `json:"environment_id"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Error         string     `json:"error,omitempty"`
	Output        []string   `json:"output"`
	Result        any        `json:"result,omitempty"`
	mu            sync.Mutex
}

// AppendLog adds a log line to the job output.
func (j *Job) AppendLog(line string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Output = append(j.Output, line)
}

// LogsSince returns log lines starting from the given index.
func (j *Job) LogsSince(offset int) []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if offset >= len(j.Output) {
		return nil
	}
	lines := make([]string, len(j.Output)-offset)
	copy(lines, j.Output[offset:])
	return lines
}

// State returns the current status under lock.
func (j *Job) State() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status
}

// Done reports whether the job has finished either way.
func (j *Job) Done() bool {
	s := j.State()
	return s == JobCompleted || s == JobFailed
}

// Complete marks the job as completed with an optional result payload.
func (j *Job) Complete(result any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = JobCompleted
	j.Result = result
	now := time.Now()
	j.FinishedAt = &now
}

// Fail marks the job as failed with an error message.
func (j *Job) Fail(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = JobFailed
	j.Error = err
	now := time.Now()
	j.FinishedAt = &now
}

// Logger returns a logger whose entries are also appended to the job output.
func (j *Job) Logger(base *logrus.Logger) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(base.Out)
	l.SetFormatter(base.Formatter)
	l.SetLevel(base.GetLevel())
	l.AddHook(&jobHook{job: j})
	return l
}

// jobHook mirrors log entries into a job's output.
type jobHook struct {
	job *Job
}

func (h *jobHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *jobHook) Fire(e *logrus.Entry) error {
	line := e.Message
	switch e.Level {
	case logrus.WarnLevel:
		line = "WARNING: " + line
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		line = "ERROR: " + line
	case logrus.DebugLevel, logrus.TraceLevel:
		return nil
	}
	h.job.AppendLog(strings.TrimRight(line, "\n"))
	return nil
}

// JobStore is an in-memory thread-safe store for jobs.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewJobStore creates an empty job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*Job)}
}

// Create adds a new job, assigning it a UUID.
func (s *JobStore) Create(jobType, environmentID string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := &Job{
		ID:            uuid.New().String(),
		Type:          jobType,
		EnvironmentID: environmentID,
		Status:        JobRunning,
		StartedAt:     time.Now(),
		Output:        []string{},
	}
	s.jobs[j.ID] = j
	return j
}

// Get returns a job by ID.
func (s *JobStore) Get(id string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id]
}

// List returns all jobs, most recent first.
func (s *JobStore) List() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		result = append(result, j)
	}
	sort.Slice(result, func(a, b int) bool {
		return result[a].StartedAt.After(result[b].StartedAt)
	})
	return result
}

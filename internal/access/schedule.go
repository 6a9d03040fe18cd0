package access

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rflorenc/sisense-workbench/internal/models"
)

// DefaultBuildType is used when a schedule names none.
const DefaultBuildType = "ACCUMULATE"

var dayNumbers = map[string]string{
	"SUN": "0", "MON": "1", "TUE": "2", "WED": "3", "THU": "4", "FRI": "5", "SAT": "6",
}

// Schedule describes a recurring build in UTC. Days holds SUN..SAT, or a
// single "*" for every day.
type Schedule struct {
	Days      []string `json:"days"`
	Hour      int      `json:"hour"`
	Minute    int      `json:"minute"`
	Datamodel string   `json:"datamodel"`
	BuildType string   `json:"build_type,omitempty"`
}

// CronString returns "<minute> <hour> * * <days>" for s.
func (s Schedule) CronString() (string, error) {
	if s.Hour < 0 || s.Hour > 23 {
		return "", fmt.Errorf("hour %d out of range 0-23", s.Hour)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return "", fmt.Errorf("minute %d out of range 0-59", s.Minute)
	}
	if len(s.Days) == 0 {
		return "", fmt.Errorf("at least one day is required")
	}
	var days string
	if len(s.Days) == 1 && s.Days[0] == "*" {
		days = "0,1,2,3,4,5,6"
	} else {
		nums := make([]string, 0, len(s.Days))
		for _, d := range s.Days {
			n, ok := dayNumbers[strings.ToUpper(d)]
			if !ok {
				return "", fmt.Errorf("invalid day %q, use SUN..SAT or *", d)
			}
			nums = append(nums, n)
		}
		days = strings.Join(nums, ",")
	}
	return strconv.Itoa(s.Minute) + " " + strconv.Itoa(s.Hour) + " * * " + days, nil
}

// CreateScheduleBuild creates a build schedule for the named data model.
func (m *Manager) CreateScheduleBuild(ctx context.Context, s Schedule) (map[string]any, error) {
	cron, err := s.CronString()
	if err != nil {
		return nil, err
	}
	dm, err := m.tenant.FindDatamodel(ctx, s.Datamodel)
	if err != nil {
		return nil, err
	}
	buildType := s.BuildType
	if buildType == "" {
		buildType = DefaultBuildType
	}
	payload := models.SchedulePayload{
		CronString: cron,
		BuildType:  buildType,
		DaysOfWeek: s.Days,
		Hour:       s.Hour,
		Minute:     s.Minute,
	}
	m.log.WithField("cron", cron).Infof("Creating %s schedule for %s", buildType, s.Datamodel)
	return m.tenant.CreateSchedule(ctx, dm.OID, payload)
}

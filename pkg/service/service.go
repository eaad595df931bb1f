// Package service holds the project use cases shared by the MCP and HTTP surfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harrisonrobin/weworkmcp/pkg/analysis"
	"github.com/harrisonrobin/weworkmcp/pkg/google"
	"github.com/harrisonrobin/weworkmcp/pkg/match"
	"github.com/harrisonrobin/weworkmcp/pkg/model"
)

var (
	ErrProjectNotFound  = errors.New("project not found")
	ErrCalendarDisabled = errors.New("calendar sync is not configured")
)

// Upstream supplies raw project data.
type Upstream interface {
	FetchProjects(ctx context.Context) ([]model.Project, error)
	FetchProjectDetails(ctx context.Context, projectID string) (model.Value, error)
	// ProjectInfo returns the project with the given id, or nil when there is none.
	ProjectInfo(ctx context.Context, projectID string) (*model.Project, error)
}

type Exporter interface {
	Export(projectName string, table *analysis.Table) (string, error)
}

type DeadlineSyncer interface {
	SyncTable(ctx context.Context, projectID string, table *analysis.Table) google.SyncReport
}

type Deps struct {
	Upstream Upstream
	Analyzer *analysis.Analyzer
	Matcher  *match.ProjectMatcher
	Exporter Exporter
	// Syncer is optional; without it SyncDeadlines reports ErrCalendarDisabled.
	Syncer DeadlineSyncer
	Logger logrus.FieldLogger
}

type Service struct {
	upstream Upstream
	analyzer *analysis.Analyzer
	matcher  *match.ProjectMatcher
	exporter Exporter
	syncer   DeadlineSyncer
	logger   logrus.FieldLogger
	now      func() time.Time
}

func New(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	if d.Analyzer == nil {
		d.Analyzer = analysis.NewAnalyzer(d.Logger)
	}
	if d.Matcher == nil {
		d.Matcher = match.New(d.Logger)
	}
	return &Service{
		upstream: d.Upstream,
		analyzer: d.Analyzer,
		matcher:  d.Matcher,
		exporter: d.Exporter,
		syncer:   d.Syncer,
		logger:   d.Logger,
		now:      time.Now,
	}
}

// CalendarEnabled reports whether deadline sync is available.
func (s *Service) CalendarEnabled() bool { return s.syncer != nil }

type ProjectList struct {
	Projects   []model.Project `json:"projects"`
	TotalCount int             `json:"total_count"`
	Error      string          `json:"error,omitempty"`
}

func (s *Service) AvailableProjects(ctx context.Context) ProjectList {
	projects, err := s.upstream.FetchProjects(ctx)
	if err != nil {
		return ProjectList{Projects: []model.Project{}, Error: err.Error()}
	}
	if projects == nil {
		projects = []model.Project{}
	}
	return ProjectList{Projects: projects, TotalCount: len(projects)}
}

// SearchProjects ranks projects by how well their names match text.
func (s *Service) SearchProjects(ctx context.Context, text string, limit int) ([]model.Project, error) {
	if limit < 0 {
		return nil, match.ErrNegativeLimit
	}
	found, err := s.matcher.Search(text, s.projects(ctx), limit)
	if err != nil {
		return nil, err
	}
	return found, nil
}

// ProjectDetails returns the project record with the given id.
func (s *Service) ProjectDetails(ctx context.Context, projectID string) (*model.Project, error) {
	project, err := s.upstream.ProjectInfo(ctx, projectID)
	if err != nil {
		s.logger.WithError(err).Warn("could not fetch projects")
	}
	if project == nil {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	return project, nil
}

type TaskSummary struct {
	TotalTasks      int            `json:"total_tasks"`
	CompletedTasks  int            `json:"completed_tasks"`
	InProgressTasks int            `json:"in_progress_tasks"`
	FailedTasks     int            `json:"failed_tasks"`
	StatusBreakdown map[string]int `json:"status_breakdown,omitempty"`
}

type Analysis struct {
	ProjectName string              `json:"project_name"`
	ProjectID   string              `json:"project_id"`
	Tasks       []map[string]string `json:"tasks"`
	Summary     TaskSummary         `json:"summary"`
	CSVFile     string              `json:"csv_file,omitempty"`
}

// AnalyzeProject builds the task table of a project and summarizes it. With exportCSV
// set, a non-empty table is also written to disk.
func (s *Service) AnalyzeProject(ctx context.Context, projectID string, exportCSV bool) (*Analysis, error) {
	project, table, err := s.analyze(ctx, projectID)
	if err != nil {
		return nil, err
	}

	result := &Analysis{
		ProjectName: project.Name,
		ProjectID:   projectID,
		Tasks:       table.Records(),
	}
	if table.Empty() {
		return result, nil
	}

	stats := analysis.ComputeStatistics(table)
	result.Summary = TaskSummary{
		TotalTasks:      stats.TotalTasks,
		CompletedTasks:  stats.Summary.Completed,
		InProgressTasks: stats.Summary.InProgress,
		FailedTasks:     stats.Summary.Failed,
		StatusBreakdown: stats.StatusBreakdown,
	}

	if exportCSV {
		if s.exporter == nil {
			return nil, errors.New("csv export is not configured")
		}
		path, err := s.exporter.Export(project.Name, table)
		if err != nil {
			return nil, err
		}
		s.logger.WithFields(logrus.Fields{"project": projectID, "file": path}).Info("exported task analysis")
		result.CSVFile = path
	}
	return result, nil
}

type FindResult struct {
	Found           bool           `json:"found"`
	Project         *model.Project `json:"project,omitempty"`
	SimilarityScore float64        `json:"similarity_score"`
	SearchTerm      string         `json:"search_term"`
	Message         string         `json:"message,omitempty"`
}

// FindProjectByName returns the single best match for name at the given threshold.
func (s *Service) FindProjectByName(ctx context.Context, name string, threshold float64) FindResult {
	r := s.matcher.FindBestMatch(name, s.projects(ctx), threshold)
	if !r.Found() {
		return FindResult{
			SimilarityScore: r.Score,
			SearchTerm:      name,
			Message:         fmt.Sprintf("no project matches %q (threshold: %v)", name, threshold),
		}
	}
	return FindResult{
		Found:           true,
		Project:         r.Project,
		SimilarityScore: r.Score,
		SearchTerm:      name,
	}
}

type ProjectStatistics struct {
	ProjectName string              `json:"project_name"`
	ProjectID   string              `json:"project_id"`
	Statistics  analysis.Statistics `json:"statistics"`
}

func (s *Service) ProjectStatistics(ctx context.Context, projectID string) (*ProjectStatistics, error) {
	project, table, err := s.analyze(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &ProjectStatistics{
		ProjectName: project.Name,
		ProjectID:   projectID,
		Statistics:  analysis.ComputeStatistics(table),
	}, nil
}

type ConnectionStatus struct {
	Success       bool   `json:"success"`
	TotalProjects *int   `json:"total_projects,omitempty"`
	Error         string `json:"error,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// TestConnection checks that the upstream service answers with the configured token.
func (s *Service) TestConnection(ctx context.Context) ConnectionStatus {
	status := ConnectionStatus{Timestamp: s.now().Format(time.RFC3339)}
	projects, err := s.upstream.FetchProjects(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	n := len(projects)
	status.Success = true
	status.TotalProjects = &n
	return status
}

type DeadlineSync struct {
	ProjectName string `json:"project_name"`
	ProjectID   string `json:"project_id"`
	SyncedCount int    `json:"synced"`
	google.SyncReport
}

// SyncDeadlines mirrors the project's task deadlines into the configured calendar.
func (s *Service) SyncDeadlines(ctx context.Context, projectID string) (*DeadlineSync, error) {
	if s.syncer == nil {
		return nil, ErrCalendarDisabled
	}
	project, table, err := s.analyze(ctx, projectID)
	if err != nil {
		return nil, err
	}
	report := s.syncer.SyncTable(ctx, projectID, table)
	return &DeadlineSync{
		ProjectName: project.Name,
		ProjectID:   projectID,
		SyncedCount: report.Synced(),
		SyncReport:  report,
	}, nil
}

// projects lists upstream projects. Upstream failure reads as an empty list.
func (s *Service) projects(ctx context.Context) []model.Project {
	projects, err := s.upstream.FetchProjects(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("could not fetch projects")
		return nil
	}
	return projects
}

func (s *Service) analyze(ctx context.Context, projectID string) (*model.Project, *analysis.Table, error) {
	project, err := s.ProjectDetails(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	payload, err := s.upstream.FetchProjectDetails(ctx, projectID)
	if err != nil {
		s.logger.WithError(err).WithField("project", projectID).Warn("could not fetch project details, analyzing as empty")
		payload = model.Value{}
	}
	return project, s.analyzer.AnalyzeTasks(payload), nil
}

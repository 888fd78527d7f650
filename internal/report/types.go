// Package report defines the documents exchanged with the RefractorIQ
// analysis backend: job status, the analysis result and its graph payload,
// and search hits.
package report

import (
	"bytes"
	"encoding/json"
)

// JobStatus is the backend's job lifecycle state.
type JobStatus string

const (
	StatusPending   JobStatus = "PENDING"
	StatusRunning   JobStatus = "RUNNING"
	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
)

// Known reports whether s is one of the four backend states.
func (s JobStatus) Known() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further status changes are expected.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StartResponse is returned by the analysis start endpoint.
type StartResponse struct {
	JobID string `json:"job_id"`
}

// StatusResponse is returned by the job status endpoint.
type StatusResponse struct {
	JobID      string    `json:"job_id,omitempty"`
	Status     JobStatus `json:"status"`
	ResultsURL string    `json:"results_url,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// AnalysisResult is the full results document of a completed job.
type AnalysisResult struct {
	Repository         string             `json:"repository"`
	CodeMetrics        CodeMetrics        `json:"code_metrics"`
	DependencyMetrics  DependencyMetrics  `json:"dependency_metrics"`
	DuplicationMetrics DuplicationMetrics `json:"duplication_metrics"`
	LLMSuggestions     []Suggestion       `json:"llm_suggestions,omitempty"`

	AnalysisMethod     string   `json:"analysis_method,omitempty"`
	ExcludedThirdParty *bool    `json:"excluded_third_party,omitempty"`
	ExcludedTests      *bool    `json:"excluded_tests,omitempty"`
	AnalysisErrors     []string `json:"analysis_errors,omitempty"`
}

// CodeMetrics holds size, complexity and debt figures. Error is set instead
// of the figures when the backend's code metrics stage failed.
type CodeMetrics struct {
	LOC                     Num                    `json:"LOC"`
	TODOs                   Num                    `json:"TODOs_FIXME_HACK"`
	AvgCyclomaticComplexity Num                    `json:"AvgCyclomaticComplexity"`
	DebtScore               Num                    `json:"DebtScore"`
	TotalFunctions          Num                    `json:"TotalFunctions"`
	FilesAnalyzed           Num                    `json:"FilesAnalyzed"`
	MaxComplexity           Num                    `json:"MaxComplexity"`
	MinComplexity           Num                    `json:"MinComplexity"`
	ComplexityDistribution  ComplexityDistribution `json:"ComplexityDistribution"`
	Error                   string                 `json:"error,omitempty"`
}

// ComplexityDistribution counts functions per complexity bucket.
type ComplexityDistribution struct {
	Low      Num `json:"low"`
	Medium   Num `json:"medium"`
	High     Num `json:"high"`
	VeryHigh Num `json:"very_high"`
}

// Total sums the valid buckets.
func (d ComplexityDistribution) Total() Num {
	var sum float64
	var seen bool
	for _, n := range []Num{d.Low, d.Medium, d.High, d.VeryHigh} {
		if n.Valid {
			sum += n.Value
			seen = true
		}
	}
	if !seen {
		return Num{}
	}
	return N(sum)
}

// DependencyMetrics summarises the dependency graph.
type DependencyMetrics struct {
	TotalFiles                Num           `json:"total_files"`
	TotalFunctions            Num           `json:"total_functions"`
	TotalClasses              Num           `json:"total_classes"`
	TotalExternalDependencies Num           `json:"total_external_dependencies"`
	TotalEdges                Num           `json:"total_edges"`
	CircularDependencies      Num           `json:"circular_dependencies"`
	CircularDependencyChains  [][]string    `json:"circular_dependency_chains,omitempty"`
	MostDependentFiles        []FileDegree  `json:"most_dependent_files,omitempty"`
	MostDependedOnFiles       []FileDegree  `json:"most_depended_on_files,omitempty"`
	GraphJSON                 *GraphPayload `json:"graph_json"`
	Error                     string        `json:"error,omitempty"`
}

// FileDegree is one entry of the most-dependent / most-depended-on lists.
// The backend uses "dependencies" for the former and "dependents" for the latter.
type FileDegree struct {
	File         string `json:"file"`
	Dependencies Num    `json:"dependencies"`
	Dependents   Num    `json:"dependents"`
}

// Count returns whichever degree field is present.
func (f FileDegree) Count() Num {
	if f.Dependencies.Valid {
		return f.Dependencies
	}
	return f.Dependents
}

// DuplicationMetrics holds near-duplicate file pairs.
type DuplicationMetrics struct {
	DuplicatePairsFound Num             `json:"duplicate_pairs_found"`
	FilesAnalyzed       Num             `json:"files_analyzed"`
	SimilarityThreshold Num             `json:"similarity_threshold"`
	ShingleSizeK        Num             `json:"shingle_size_k"`
	Duplicates          []DuplicatePair `json:"duplicates,omitempty"`
	Error               string          `json:"error,omitempty"`
}

// DuplicatePair is two files with their estimated Jaccard similarity.
type DuplicatePair struct {
	FileA      string `json:"file_a"`
	FileB      string `json:"file_b"`
	Similarity Num    `json:"similarity"`
}

// Suggestion is an AI refactoring suggestion for one complex function.
type Suggestion struct {
	FilePath     string `json:"file_path"`
	FunctionName string `json:"function_name"`
	Complexity   Num    `json:"complexity"`
	Suggestion   string `json:"suggestion"`
	Content      string `json:"content,omitempty"`
}

// Node types in the dependency graph.
const (
	NodeFile     = "file"
	NodeFunction = "function"
	NodeClass    = "class"
	NodeExternal = "external"
)

// Edge relationships in the dependency graph.
const (
	RelDefines = "defines"
	RelImports = "imports"
)

// GraphPayload is the node-link dependency graph.
type GraphPayload struct {
	Directed bool        `json:"directed,omitempty"`
	Nodes    []GraphNode `json:"nodes"`
	Links    []GraphLink `json:"links"`
}

// UnmarshalJSON accepts both "links" and the newer "edges" key for the edge list.
func (g *GraphPayload) UnmarshalJSON(data []byte) error {
	var raw struct {
		Directed bool        `json:"directed"`
		Nodes    []GraphNode `json:"nodes"`
		Links    []GraphLink `json:"links"`
		Edges    []GraphLink `json:"edges"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	g.Directed = raw.Directed
	g.Nodes = raw.Nodes
	g.Links = raw.Links
	if len(g.Links) == 0 && len(raw.Edges) > 0 {
		g.Links = raw.Edges
	}
	return nil
}

// GraphNode is one node of the dependency graph. Function and class ids are
// "<file>::<name>"; external ids are "external::<module>".
type GraphNode struct {
	ID       string `json:"id"`
	Type     string `json:"type,omitempty"`
	File     string `json:"file,omitempty"`
	Name     string `json:"name,omitempty"`
	Module   string `json:"module,omitempty"`
	Language string `json:"language,omitempty"`
}

// GraphLink is one directed edge of the dependency graph.
type GraphLink struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	Relationship string `json:"relationship,omitempty"`
	Module       string `json:"module,omitempty"`
}

// UnmarshalJSON tolerates numeric node references.
func (l *GraphLink) UnmarshalJSON(data []byte) error {
	var raw struct {
		Source       json.RawMessage `json:"source"`
		Target       json.RawMessage `json:"target"`
		Relationship string          `json:"relationship"`
		Module       string          `json:"module"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	l.Source = refString(raw.Source)
	l.Target = refString(raw.Target)
	l.Relationship = raw.Relationship
	l.Module = raw.Module
	return nil
}

func refString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// SearchResponse is returned by the results search endpoint.
type SearchResponse struct {
	Results []SearchHit `json:"results"`
}

// SearchHit is one ranked snippet.
type SearchHit struct {
	FilePath string `json:"file_path"`
	Score    Num    `json:"score"`
	Content  string `json:"content"`
}

// Summary is the compact metric set kept with each history entry.
type Summary struct {
	LOC            Num `json:"loc"`
	DebtScore      Num `json:"debt_score"`
	AvgComplexity  Num `json:"avg_complexity"`
	DuplicatePairs Num `json:"duplicate_pairs"`
}

// Summarize extracts the history summary from a result; nil gives an empty summary.
func Summarize(r *AnalysisResult) Summary {
	if r == nil {
		return Summary{}
	}
	return Summary{
		LOC:            r.CodeMetrics.LOC,
		DebtScore:      r.CodeMetrics.DebtScore,
		AvgComplexity:  r.CodeMetrics.AvgCyclomaticComplexity,
		DuplicatePairs: r.DuplicationMetrics.DuplicatePairsFound,
	}
}

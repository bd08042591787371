// Package orthanctest runs an in-memory Orthanc look-alike for tests.
package orthanctest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/caio-sobreiro/pdfpacs/dicom"
)

// Endpoints served by the fake
const (
	EndpointSystem = "system"
	EndpointFind   = "find"
	EndpointStore  = "store"
)

// Study is one study known to the fake
type Study struct {
	ID               string
	StudyInstanceUID string
	AccessionNumber  string
	PatientID        string
	PatientName      string
	StudyDate        string
}

type fault struct {
	status    int
	remaining int
}

// Server is an httptest server speaking the subset of the Orthanc API
// the pipeline uses
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	username  string
	password  string
	studies   []Study
	instances map[string][]byte
	calls     map[string]int
	queries   []map[string]string
	faults    map[string]*fault
}

// New starts a fake. Basic auth is enforced when username is not empty.
func New(username, password string) *Server {
	s := &Server{
		username:  username,
		password:  password,
		instances: make(map[string][]byte),
		calls:     make(map[string]int),
		faults:    make(map[string]*fault),
	}

	r := chi.NewRouter()
	r.Use(s.authenticate)
	r.Get("/system", s.counted(EndpointSystem, s.handleSystem))
	r.Post("/tools/find", s.counted(EndpointFind, s.handleFind))
	r.Post("/instances", s.counted(EndpointStore, s.handleStore))

	s.Server = httptest.NewServer(r)
	return s
}

// AddStudy registers an existing study
func (s *Server) AddStudy(study Study) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.studies = append(s.studies, study)
}

// Fail makes the next n calls to endpoint answer status
func (s *Server) Fail(endpoint string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[endpoint] = &fault{status: status, remaining: n}
}

// Calls returns how many requests endpoint received, faults included
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// TotalCalls counts every request
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// Queries returns the find queries received, in order
func (s *Server) Queries() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]string(nil), s.queries...)
}

// Instance returns the stored Part 10 bytes of a SOP Instance UID
func (s *Server) Instance(sopInstanceUID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.instances[sopInstanceUID]
	return data, ok
}

// InstanceCount returns how many distinct instances were stored
func (s *Server) InstanceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.username != "" {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.username || pass != s.password {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) counted(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[endpoint]++
		f := s.faults[endpoint]
		status := 0
		if f != nil && f.remaining > 0 {
			f.remaining--
			status = f.status
		}
		s.mu.Unlock()

		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"Name": "FAKE", "Version": "1.12.5"})
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level string            `json:"Level"`
		Query map[string]string `json:"Query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Level != "Study" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.queries = append(s.queries, req.Query)
	var found []map[string]interface{}
	for _, st := range s.studies {
		if matches(st, req.Query) {
			found = append(found, map[string]interface{}{
				"ID":            st.ID,
				"MainDicomTags": map[string]string{"StudyInstanceUID": st.StudyInstanceUID},
			})
		}
	}
	s.mu.Unlock()

	if found == nil {
		found = []map[string]interface{}{}
	}
	writeJSON(w, found)
}

func matches(st Study, query map[string]string) bool {
	fields := map[string]string{
		"AccessionNumber": st.AccessionNumber,
		"PatientID":       st.PatientID,
		"PatientName":     st.PatientName,
		"StudyDate":       st.StudyDate,
	}
	for key, want := range query {
		if fields[key] != want {
			return false
		}
	}
	return true
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	ds, _, err := dicom.ReadPart10(data)
	if err != nil {
		http.Error(w, "not a DICOM file", http.StatusBadRequest)
		return
	}

	sopUID := ds.GetString(dicom.TagSOPInstanceUID)
	studyUID := ds.GetString(dicom.TagStudyInstanceUID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[sopUID]; ok {
		writeJSON(w, map[string]string{"ID": "instance-" + sopUID, "Status": "AlreadyStored"})
		return
	}
	s.instances[sopUID] = data

	known := false
	for _, st := range s.studies {
		if st.StudyInstanceUID == studyUID {
			known = true
			break
		}
	}
	if !known {
		s.studies = append(s.studies, Study{
			ID:               "study-" + studyUID,
			StudyInstanceUID: studyUID,
			AccessionNumber:  ds.GetString(dicom.TagAccessionNumber),
			PatientID:        ds.GetString(dicom.TagPatientID),
			PatientName:      ds.GetString(dicom.TagPatientName),
			StudyDate:        ds.GetString(dicom.TagStudyDate),
		})
	}

	writeJSON(w, map[string]string{
		"ID":          "instance-" + sopUID,
		"Status":      "Success",
		"ParentStudy": "study-" + studyUID,
	})
}

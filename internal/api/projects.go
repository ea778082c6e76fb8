package api

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/nugget/thane-forge/internal/repo"
	"github.com/nugget/thane-forge/internal/store"
)

// dependencyTreeEntry is one leaf in the dependency-tree response.
type dependencyTreeEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Source  string `json:"source"`
}

type projectRequest struct {
	Name          string `json:"name"`
	RemoteURL     string `json:"remote_url"`
	Branch        string `json:"branch"`
	TargetChip    string `json:"target_chip"`
	BuildSystem   string `json:"build_system"`
	WebhookSecret string `json:"webhook_secret"`
}

func (s *Server) handleProjectList(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, projects, s.logger)
}

func (s *Server) handleProjectCreate(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.RemoteURL == "" {
		s.errorResponse(w, http.StatusBadRequest, "name and remote_url are required")
		return
	}

	slug, err := repo.SlugFromRemoteURL(req.RemoteURL)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "could not derive owner/repo slug from remote_url: "+err.Error())
		return
	}

	branch := req.Branch
	if branch == "" {
		branch = "main"
	}
	clonePath := filepath.Join(s.projectsBaseDir, req.Name)

	project := &store.Project{
		Name:          req.Name,
		RemoteURL:     req.RemoteURL,
		Slug:          slug,
		Branch:        branch,
		ClonePath:     clonePath,
		TargetChip:    req.TargetChip,
		BuildSystem:   req.BuildSystem,
		WebhookSecret: req.WebhookSecret,
		State:         store.ProjectPending,
	}
	if err := s.store.CreateProject(project); err != nil {
		s.errorResponse(w, http.StatusConflict, err.Error())
		return
	}

	if err := s.repo.Clone(r.Context(), project.RemoteURL, project.ClonePath, project.Branch); err != nil {
		project.State = store.ProjectError
		s.store.UpdateProject(project)
		s.errorResponse(w, http.StatusBadGateway, "cloning repository: "+err.Error())
		return
	}

	commit, err := s.repo.LatestCommit(r.Context(), project.ClonePath)
	if err == nil {
		project.LastCommit = commit
	}
	project.State = store.ProjectActive
	if err := s.store.UpdateProject(project); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	if manifests, total, err := s.resolver.Scan(project.ID, project.ClonePath); err != nil {
		s.logger.Warn("dependency scan failed after clone", "project_id", project.ID, "error", err)
	} else {
		s.logger.Info("dependency scan after clone", "project_id", project.ID, "manifests", manifests, "dependencies", total)
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, project, s.logger)
}

func (s *Server) handleProjectGet(w http.ResponseWriter, r *http.Request) {
	project, err := s.getProjectOr404(w, r)
	if err != nil {
		return
	}
	writeJSON(w, project, s.logger)
}

func (s *Server) handleProjectUpdate(w http.ResponseWriter, r *http.Request) {
	project, err := s.getProjectOr404(w, r)
	if err != nil {
		return
	}
	var req projectRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Branch != "" {
		project.Branch = req.Branch
	}
	if req.TargetChip != "" {
		project.TargetChip = req.TargetChip
	}
	if req.BuildSystem != "" {
		project.BuildSystem = req.BuildSystem
	}
	if req.WebhookSecret != "" {
		project.WebhookSecret = req.WebhookSecret
	}
	if err := s.store.UpdateProject(project); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, project, s.logger)
}

func (s *Server) handleProjectDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteProject(id); err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProjectSync(w http.ResponseWriter, r *http.Request) {
	project, err := s.getProjectOr404(w, r)
	if err != nil {
		return
	}
	if err := s.repo.Update(r.Context(), project.ClonePath, project.Branch); err != nil {
		s.errorResponse(w, http.StatusBadGateway, "syncing repository: "+err.Error())
		return
	}
	commit, err := s.repo.LatestCommit(r.Context(), project.ClonePath)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	project.LastCommit = commit
	if err := s.store.UpdateProject(project); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, project, s.logger)
}

func (s *Server) handleProjectBuild(w http.ResponseWriter, r *http.Request) {
	project, err := s.getProjectOr404(w, r)
	if err != nil {
		return
	}
	commit := project.LastCommit
	if commit == "" {
		commit, _ = s.repo.LatestCommit(r.Context(), project.ClonePath)
	}
	build, err := s.store.CreateBuild(&store.Build{
		ProjectID:   project.ID,
		CommitHash:  commit,
		Branch:      project.Branch,
		TriggeredBy: store.TriggerManual,
	})
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	go func(buildID string) {
		if err := s.builder.ExecuteBuild(context.Background(), buildID, false, true); err != nil {
			s.logger.Error("manual build execution error", "build_id", buildID, "error", err)
		}
	}(build.ID)
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, build, s.logger)
}

func (s *Server) handleScanDependencies(w http.ResponseWriter, r *http.Request) {
	project, err := s.getProjectOr404(w, r)
	if err != nil {
		return
	}
	manifests, total, err := s.resolver.Scan(project.ID, project.ClonePath)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{"manifests": manifests, "dependencies": total}, s.logger)
}

func (s *Server) handleDependencyList(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	list, err := s.store.ListDependencies(id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, list, s.logger)
}

// handleDependencyTree groups the flat dependency list by source kind
// (registry, git, path) for a tree-style client rendering.
func (s *Server) handleDependencyTree(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	list, err := s.store.ListDependencies(id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	tree := map[string][]*dependencyTreeEntry{}
	for _, d := range list {
		kind := "component-registry"
		switch {
		case strings.HasPrefix(d.SourceTag, "git:"):
			kind = "git"
		case strings.HasPrefix(d.SourceTag, "path:"):
			kind = "path"
		}
		tree[kind] = append(tree[kind], &dependencyTreeEntry{
			Name:    d.ComponentName,
			Version: d.VersionSpec,
			Source:  d.SourceTag,
		})
	}
	writeJSON(w, tree, s.logger)
}

func (s *Server) handleBuildList(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	builds, err := s.store.ListBuilds(projectID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, builds, s.logger)
}

func (s *Server) handleBuildGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	build, err := s.store.GetBuild(id)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, build, s.logger)
}

func (s *Server) handleBuildRetry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.builder.RetryBuild(r.Context(), id, false, true); err != nil {
		s.errorResponse(w, http.StatusConflict, err.Error())
		return
	}
	build, err := s.store.GetBuild(id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, build, s.logger)
}

func (s *Server) getProjectOr404(w http.ResponseWriter, r *http.Request) (*store.Project, error) {
	id := r.PathValue("id")
	project, err := s.store.GetProject(id)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return nil, err
	}
	return project, nil
}

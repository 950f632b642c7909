package api

import (
	"net/http"

	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
)

func (s *Server) getBucket(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Buckets.GetBucket(r.PathValue("username"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Buckets.WriteFile(r.PathValue("username"), r.PathValue("filename"), r.Body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Buckets.DeleteFile(r.PathValue("username"), r.PathValue("filename")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refreshBucket(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Buckets.Refresh(r.PathValue("username")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type startedResponse struct {
	Started bool `json:"started"`
}

func (s *Server) startBurn(w http.ResponseWriter, r *http.Request) {
	var info rom.BurnInfo
	if err := decodeJSON(w, r, &info); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid burn info: " + err.Error()})
		return
	}
	started, err := s.svc.Buckets.StartBurn(r.PathValue("username"), info)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, startedResponse{Started: started})
}

func (s *Server) acknowledgeBurn(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Buckets.AcknowledgeBurn(r.PathValue("username")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getRom(w http.ResponseWriter, r *http.Request) {
	view, ok := s.svc.Mapper.Map(r.PathValue("cid"))
	if !ok {
		s.writeError(w, rom.ErrNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) mountRom(w http.ResponseWriter, r *http.Request) {
	cid := r.PathValue("cid")
	if err := s.svc.Mounts.BeginMount(cid); err != nil {
		s.writeError(w, err)
		return
	}
	s.getRom(w, r)
}

func (s *Server) unmountRom(w http.ResponseWriter, r *http.Request) {
	cid := r.PathValue("cid")
	if err := s.svc.Mounts.EndMount(cid); err != nil {
		s.writeError(w, err)
		return
	}
	s.getRom(w, r)
}

type extendRequest struct {
	DurabilityOptionID uint64 `json:"durabilityOptionId"`
}

func (s *Server) extendRom(w http.ResponseWriter, r *http.Request) {
	var req extendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid extend request: " + err.Error()})
		return
	}
	started, err := s.svc.Burns.ExtendRom(r.PathValue("cid"), req.DurabilityOptionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, startedResponse{Started: started})
}

func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	path, err := s.svc.Mounts.FilePath(r.PathValue("cid"), r.PathValue("filename"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	http.ServeFile(w, r, path)
}

type popularResponse struct {
	Roms []rom.RomView `json:"roms"`
	Tags []string      `json:"tags"`
}

func (s *Server) popular(w http.ResponseWriter, r *http.Request) {
	info := s.svc.Popular.Info()
	s.writeJSON(w, http.StatusOK, popularResponse{
		Roms: s.svc.Mapper.MapAll(info.RomCIDs),
		Tags: info.Tags,
	})
}

type searchResponse struct {
	Roms []rom.RomView `json:"roms"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	cids := s.svc.Search.Query(r.PathValue("query"))
	s.writeJSON(w, http.StatusOK, searchResponse{Roms: s.svc.Mapper.MapAll(cids)})
}

type durabilityResponse struct {
	Options []rom.DurabilityOption `json:"options"`
}

func (s *Server) durability(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, durabilityResponse{Options: s.svc.Durability.Options()})
}

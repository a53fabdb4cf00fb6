package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/scorecast/scorecast/internal/predict"
	"github.com/scorecast/scorecast/internal/schema"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

func (s *Server) handleCreateStudent(c *gin.Context) {
	var req StudentRequest
	if !bindJSON(c, &req) {
		return
	}
	st, err := s.repo.CreateStudent(c.Request.Context(), req.toStudent())
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreatedResponse{StudentID: st.ID, Message: "student created"})
}

func (s *Server) handleListStudents(c *gin.Context) {
	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil || skip < 0 {
		errorResponse(c, http.StatusBadRequest, "invalid skip")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 || limit > maxPageSize {
		errorResponse(c, http.StatusBadRequest, "invalid limit")
		return
	}
	list, err := s.repo.ListStudents(c.Request.Context(), skip, limit)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if list == nil {
		list = []schema.Student{}
	}
	c.JSON(http.StatusOK, StudentListResponse{Students: list, Skip: skip, Limit: limit})
}

func (s *Server) handleGetStudent(c *gin.Context) {
	id, ok := studentID(c)
	if !ok {
		return
	}
	st, err := s.repo.GetStudent(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleUpdateStudent(c *gin.Context) {
	id, ok := studentID(c)
	if !ok {
		return
	}
	var patch schema.StudentPatch
	if !bindJSON(c, &patch) {
		return
	}
	st, err := s.repo.UpdateStudent(c.Request.Context(), id, patch)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleDeleteStudent(c *gin.Context) {
	id, ok := studentID(c)
	if !ok {
		return
	}
	if err := s.repo.DeleteStudent(c.Request.Context(), id); err != nil {
		s.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCreateAcademic(c *gin.Context) {
	id, ok := studentID(c)
	if !ok {
		return
	}
	var rec schema.AcademicRecord
	if !bindJSON(c, &rec) {
		return
	}
	out, err := s.repo.CreateAcademic(c.Request.Context(), id, rec)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (s *Server) handleGetAcademic(c *gin.Context) {
	id, ok := studentID(c)
	if !ok {
		return
	}
	out, err := s.repo.GetAcademic(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleUpdateAcademic(c *gin.Context) {
	id, ok := studentID(c)
	if !ok {
		return
	}
	var patch schema.AcademicPatch
	if !bindJSON(c, &patch) {
		return
	}
	out, err := s.repo.UpdateAcademic(c.Request.Context(), id, patch)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreateEnvironmental(c *gin.Context) {
	id, ok := studentID(c)
	if !ok {
		return
	}
	var rec schema.EnvironmentalFactors
	if !bindJSON(c, &rec) {
		return
	}
	out, err := s.repo.CreateEnvironmental(c.Request.Context(), id, rec)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (s *Server) handleGetEnvironmental(c *gin.Context) {
	id, ok := studentID(c)
	if !ok {
		return
	}
	out, err := s.repo.GetEnvironmental(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleUpdateEnvironmental(c *gin.Context) {
	id, ok := studentID(c)
	if !ok {
		return
	}
	var patch schema.EnvironmentalPatch
	if !bindJSON(c, &patch) {
		return
	}
	out, err := s.repo.UpdateEnvironmental(c.Request.Context(), id, patch)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreateComplete(c *gin.Context) {
	var req CompleteStudentRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := s.repo.CreateComplete(c.Request.Context(), schema.CompleteStudent{
		Student:       req.toStudent(),
		Academic:      req.Academic,
		Environmental: req.Environmental,
	})
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreatedResponse{StudentID: out.ID, Message: "complete student created"})
}

func (s *Server) handleGetComplete(c *gin.Context) {
	id, ok := studentID(c)
	if !ok {
		return
	}
	out, err := s.repo.GetComplete(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreatePrediction(c *gin.Context) {
	id, ok := studentID(c)
	if !ok {
		return
	}
	if s.predictor == nil {
		s.handleError(c, &predict.ModelNotLoadedError{Version: "none"})
		return
	}
	ctx := c.Request.Context()
	rec, err := s.repo.GetComplete(ctx, id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	res, err := s.predictor.PredictFor(rec)
	if err != nil {
		s.handleError(c, err)
		return
	}
	var actual *int
	if rec.Academic != nil {
		actual = rec.Academic.ExamScore
	}
	p, err := schema.NewPrediction(id, res.PredictedScore, res.Confidence, actual, s.predictor.Version(), s.now())
	if err != nil {
		s.handleError(c, err)
		return
	}
	saved, err := s.repo.CreatePrediction(ctx, p)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, PredictionResponse{Prediction: saved, Features: predict.BuildFeatures(rec)})
}

func (s *Server) handleListPredictions(c *gin.Context) {
	id, ok := studentID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.repo.GetStudent(ctx, id); err != nil {
		s.handleError(c, err)
		return
	}
	preds, err := s.repo.ListPredictions(ctx, id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if preds == nil {
		preds = []schema.Prediction{}
	}
	c.JSON(http.StatusOK, preds)
}

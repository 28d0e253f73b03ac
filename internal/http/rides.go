package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/ride-pool/internal/models"
	"github.com/example/ride-pool/internal/rides"
	"github.com/example/ride-pool/internal/search"
)

func (s *Server) handleBrowseRides(w http.ResponseWriter, r *http.Request) {
	views, err := s.rides.Browse(r.Context())
	if err != nil {
		s.logFailure(r, "fetch rides failed", err)
		serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleMyRides(w http.ResponseWriter, r *http.Request) {
	views, err := s.rides.Mine(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.logFailure(r, "fetch created rides failed", err)
		serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var in rides.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Msg: "Validation Error", Details: err.Error(), Error: true})
		return
	}
	view, err := s.rides.Create(r.Context(), userIDFromContext(r.Context()), in)
	var ve *rides.ValidationError
	switch {
	case errors.As(err, &ve):
		s.logFailure(r, "create ride rejected", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Msg: "Validation Error", Details: ve.Error(), Error: true})
	case err != nil:
		s.logFailure(r, "create ride failed", err)
		serverError(w, err)
	default:
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	view, err := s.rides.Get(r.Context(), id)
	switch {
	case errors.Is(err, rides.ErrRideNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Msg: "Ride not found"})
	case err != nil:
		s.logFailure(r, "fetch ride failed", err, "ride_id", id)
		serverError(w, err)
	default:
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *Server) handleUpdateRide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var patch rides.UpdateInput
	if err := decodeJSON(r, &patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Msg: "Validation Error", Details: err.Error(), Error: true})
		return
	}
	view, err := s.rides.Update(r.Context(), id, userIDFromContext(r.Context()), patch)
	var ve *rides.ValidationError
	switch {
	case errors.Is(err, rides.ErrRideNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Msg: "Ride not found"})
	case errors.Is(err, rides.ErrNotCreator):
		writeJSON(w, http.StatusUnauthorized, errorBody{Msg: "User not authorized"})
	case errors.As(err, &ve):
		s.logFailure(r, "update ride rejected", err, "ride_id", id)
		writeJSON(w, http.StatusBadRequest, errorBody{Msg: "Validation Error", Details: ve.Error(), Error: true})
	case err != nil:
		s.logFailure(r, "update ride failed", err, "ride_id", id)
		serverError(w, err)
	default:
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *Server) handleDeleteRide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.rides.Delete(r.Context(), id, userIDFromContext(r.Context()))
	switch {
	case errors.Is(err, rides.ErrRideNotFound):
		writeJSON(w, http.StatusNotFound, messageBody{Message: "Ride not found"})
	case errors.Is(err, rides.ErrNotCreator):
		writeJSON(w, http.StatusUnauthorized, messageBody{Message: "Not authorized to delete this ride"})
	case err != nil:
		s.logFailure(r, "delete ride failed", err, "ride_id", id)
		serverError(w, err)
	default:
		writeJSON(w, http.StatusOK, messageBody{Message: "Ride removed"})
	}
}

var (
	rideNotFound        = errorBody{Msg: "Ride not found", Details: "The specified ride does not exist"}
	participantNotFound = errorBody{Msg: "Participant not found", Details: "The specified participant does not exist in this ride"}
	notRideCreator      = errorBody{Msg: "Unauthorized", Details: "You are not authorized to modify this ride"}
)

type joinResponse struct {
	Message        string           `json:"message"`
	Ride           *models.RideView `json:"ride"`
	AvailableSeats int              `json:"availableSeats"`
}

func (s *Server) handleJoinRide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	view, err := s.rides.Join(r.Context(), id, userIDFromContext(r.Context()))
	switch {
	case errors.Is(err, rides.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Msg: "User not found", Details: "Unable to locate user in the database"})
	case errors.Is(err, rides.ErrRideNotFound):
		writeJSON(w, http.StatusNotFound, rideNotFound)
	case errors.Is(err, rides.ErrNoSeats):
		writeJSON(w, http.StatusBadRequest, errorBody{Msg: "No seats available", Details: "This ride is already full"})
	case err != nil:
		s.logFailure(r, "join ride failed", err, "ride_id", id)
		serverError(w, err)
	default:
		writeJSON(w, http.StatusOK, joinResponse{
			Message:        "Ride join request sent successfully",
			Ride:           view,
			AvailableSeats: view.AvailableSeats,
		})
	}
}

type participantResponse struct {
	Ride          *models.RideView `json:"ride"`
	Message       string           `json:"message"`
	ParticipantID string           `json:"participantId"`
}

func (s *Server) handleAcceptParticipant(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rideID, pid := vars["rideId"], vars["participantId"]
	view, err := s.rides.Accept(r.Context(), rideID, pid, userIDFromContext(r.Context()))
	switch {
	case errors.Is(err, rides.ErrRideNotFound):
		writeJSON(w, http.StatusNotFound, rideNotFound)
	case errors.Is(err, rides.ErrNotCreator):
		writeJSON(w, http.StatusForbidden, notRideCreator)
	case errors.Is(err, rides.ErrParticipantNotFound):
		writeJSON(w, http.StatusNotFound, participantNotFound)
	case errors.Is(err, rides.ErrAlreadyAccepted):
		writeJSON(w, http.StatusBadRequest, errorBody{Msg: "Request already accepted", Details: "This participant has already been accepted"})
	case errors.Is(err, rides.ErrNoSeats):
		writeJSON(w, http.StatusBadRequest, errorBody{Msg: "No seats available", Details: "All seats for this ride have been filled"})
	case err != nil:
		s.logFailure(r, "accept ride request failed", err, "ride_id", rideID, "participant_id", pid)
		serverError(w, err)
	default:
		writeJSON(w, http.StatusOK, participantResponse{Ride: view, Message: "Ride request accepted successfully", ParticipantID: pid})
	}
}

func (s *Server) handleRejectParticipant(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rideID, pid := vars["rideId"], vars["participantId"]
	view, err := s.rides.Reject(r.Context(), rideID, pid, userIDFromContext(r.Context()))
	switch {
	case errors.Is(err, rides.ErrRideNotFound):
		writeJSON(w, http.StatusNotFound, rideNotFound)
	case errors.Is(err, rides.ErrNotCreator):
		writeJSON(w, http.StatusForbidden, notRideCreator)
	case errors.Is(err, rides.ErrParticipantNotFound):
		writeJSON(w, http.StatusNotFound, participantNotFound)
	case err != nil:
		s.logFailure(r, "reject ride request failed", err, "ride_id", rideID, "participant_id", pid)
		serverError(w, err)
	default:
		writeJSON(w, http.StatusOK, participantResponse{Ride: view, Message: "Ride request rejected successfully", ParticipantID: pid})
	}
}

type searchRequest struct {
	FromCoordinates models.Coordinates `json:"fromCoordinates"`
	ToCoordinates   models.Coordinates `json:"toCoordinates"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	invalid := errorBody{Msg: "Invalid search", Details: "Both source and destination coordinates are required"}
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, invalid)
		return
	}
	views, err := s.search.Search(r.Context(), search.Query{
		From:        req.FromCoordinates,
		To:          req.ToCoordinates,
		RequesterID: userIDFromContext(r.Context()),
	})
	switch {
	case errors.Is(err, search.ErrInvalidQuery):
		writeJSON(w, http.StatusBadRequest, invalid)
	case err != nil:
		s.logFailure(r, "ride search failed", err)
		serverError(w, err)
	default:
		writeJSON(w, http.StatusOK, views)
	}
}

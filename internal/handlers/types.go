package handlers

import (
	"github.com/Brownie44l1/eeg-api/internal/rank"
)

type PredictionRequest struct {
	Values []float64 `json:"values"`
}

type PredictionResponse struct {
	Class       string            `json:"class"`
	Confidence  float64           `json:"confidence"`
	Predictions []rank.Prediction `json:"predictions"`
	// Values is the normalized window, set for file uploads
	Values []float64 `json:"values,omitempty"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Model    string `json:"model"`
	Sessions int    `json:"sessions"`
	Error    string `json:"error,omitempty"`
}

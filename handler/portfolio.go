// Copyright 2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package handler

import (
	"github.com/bigbird-vault/bb-api/portfolio"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type resultsParams struct {
	ExpectedValue             *float64 `json:"expectedValue"`
	WorstCase                 *float64 `json:"worstCase"`
	BestCase                  *float64 `json:"bestCase"`
	ExpectedReturn            *float64 `json:"expectedReturn"`
	ProbOfPositiveReturn      *float64 `json:"probOfPositiveReturn"`
	ProbOfReturnGreaterThan10 *float64 `json:"probOfReturnGreaterThan10"`
	ProbOfReturnGreaterThan20 *float64 `json:"probOfReturnGreaterThan20"`
	ProbOfLossGreaterThan10   *float64 `json:"probOfLossGreaterThan10"`
	ProbOfLossGreaterThan20   *float64 `json:"probOfLossGreaterThan20"`
}

type portfolioParams struct {
	Name            string             `json:"name"`
	Description     string             `json:"description"`
	PortfolioAmount *float64           `json:"portfolioAmount"`
	LookbackPeriod  *int               `json:"lookbackPeriod"`
	Allocations     map[string]float64 `json:"allocations"`
	Results         *resultsParams     `json:"results"`
	SimulationData  json.RawMessage    `json:"simulationData"`
}

// every numeric result field must be present; a partially populated results
// block is a validation gap and rejects the whole save
func (r *resultsParams) complete() bool {
	if r == nil {
		return false
	}
	for _, v := range []*float64{
		r.ExpectedValue, r.WorstCase, r.BestCase, r.ExpectedReturn,
		r.ProbOfPositiveReturn, r.ProbOfReturnGreaterThan10, r.ProbOfReturnGreaterThan20,
		r.ProbOfLossGreaterThan10, r.ProbOfLossGreaterThan20,
	} {
		if v == nil {
			return false
		}
	}
	return true
}

// CreatePortfolio saves a new portfolio analysis for the authenticated user
func CreatePortfolio(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	subLog := log.With().Str("UserID", userID).Logger()

	params := portfolioParams{}
	if err := json.Unmarshal(c.Body(), &params); err != nil {
		subLog.Warn().Stack().Err(err).Msg("CreatePortfolio bad request")
		return errorResponse(c, fiber.StatusBadRequest, "malformed request body")
	}

	if params.Name == "" || params.PortfolioAmount == nil || params.LookbackPeriod == nil ||
		len(params.Allocations) == 0 || !params.Results.complete() {
		return errorResponse(c, fiber.StatusBadRequest, "portfolio is missing required fields")
	}

	r := params.Results
	p := &portfolio.Portfolio{
		Name:            params.Name,
		Description:     params.Description,
		PortfolioAmount: *params.PortfolioAmount,
		LookbackPeriod:  *params.LookbackPeriod,
		Allocations:     params.Allocations,
		Results: portfolio.SimulationResults{
			ExpectedValue:             *r.ExpectedValue,
			WorstCase:                 *r.WorstCase,
			BestCase:                  *r.BestCase,
			ExpectedReturn:            *r.ExpectedReturn,
			ProbOfPositiveReturn:      *r.ProbOfPositiveReturn,
			ProbOfReturnGreaterThan10: *r.ProbOfReturnGreaterThan10,
			ProbOfReturnGreaterThan20: *r.ProbOfReturnGreaterThan20,
			ProbOfLossGreaterThan10:   *r.ProbOfLossGreaterThan10,
			ProbOfLossGreaterThan20:   *r.ProbOfLossGreaterThan20,
		},
		SimulationData: params.SimulationData,
	}

	id, err := portfolio.Save(c.Context(), userID, p)
	if err != nil {
		if err == portfolio.ErrInvalidPortfolio {
			return errorResponse(c, fiber.StatusBadRequest, err.Error())
		}
		subLog.Error().Stack().Err(err).Msg("could not save portfolio")
		return errorResponse(c, fiber.StatusInternalServerError, "internal server error")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"id": id},
	})
}

// ListPortfolios all portfolios owned by the authenticated user, newest first
func ListPortfolios(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	portfolios, err := portfolio.LoadForUser(c.Context(), userID)
	if err != nil {
		log.Warn().Stack().Err(err).Str("UserID", userID).Msg("ListPortfolios failed")
		return errorResponse(c, fiber.StatusInternalServerError, "internal server error")
	}

	return listResponse(c, portfolios, len(portfolios))
}

// GetPortfolio a single portfolio; only visible to its owner
func GetPortfolio(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	portfolioID := c.Params("id")

	p, err := portfolio.Load(c.Context(), portfolioID, userID)
	if err != nil {
		if err == portfolio.ErrNotFound {
			return errorResponse(c, fiber.StatusNotFound, "portfolio not found")
		}
		log.Warn().Stack().Err(err).Str("PortfolioID", portfolioID).Msg("GetPortfolio failed")
		return errorResponse(c, fiber.StatusInternalServerError, "internal server error")
	}

	return successResponse(c, p)
}

// DeletePortfolio removes a portfolio; only its owner may delete it
func DeletePortfolio(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	portfolioID := c.Params("id")

	deleted, err := portfolio.Delete(c.Context(), portfolioID, userID)
	if err != nil {
		log.Warn().Stack().Err(err).Str("PortfolioID", portfolioID).Msg("DeletePortfolio failed")
		return errorResponse(c, fiber.StatusInternalServerError, "internal server error")
	}
	if !deleted {
		return errorResponse(c, fiber.StatusNotFound, "portfolio not found")
	}

	return c.JSON(fiber.Map{"success": true})
}

package databricks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/databricks/databricks-sdk-go/service/sql"

	"delinquency-map/internal/domain"
)

// ExecuteStatement runs statement on the warehouse and returns the full,
// typed result.
func (c *Client) ExecuteStatement(ctx context.Context, warehouseID, statement string) (domain.TabularResult, error) {
	if strings.TrimSpace(warehouseID) == "" {
		return domain.TabularResult{}, errors.New("databricks: warehouse id must not be empty")
	}
	if strings.TrimSpace(statement) == "" {
		return domain.TabularResult{}, errors.New("databricks: statement must not be empty")
	}
	_, statements, err := c.workspace(ctx)
	if err != nil {
		return domain.TabularResult{}, err
	}

	resp, err := statements.ExecuteStatement(ctx, sql.ExecuteStatementRequest{
		WarehouseId:   warehouseID,
		Statement:     statement,
		WaitTimeout:   "30s",
		OnWaitTimeout: sql.ExecuteStatementRequestOnWaitTimeoutContinue,
		Format:        sql.FormatJsonArray,
		Disposition:   sql.DispositionInline,
	})
	if err != nil {
		return domain.TabularResult{}, fmt.Errorf("databricks: execute statement: %w", statusError(err))
	}
	return c.completeStatement(ctx, statements, resp)
}

// GetStatement fetches the result of a previously executed statement.
func (c *Client) GetStatement(ctx context.Context, statementID string) (domain.TabularResult, error) {
	if strings.TrimSpace(statementID) == "" {
		return domain.TabularResult{}, errors.New("databricks: statement id must not be empty")
	}
	_, statements, err := c.workspace(ctx)
	if err != nil {
		return domain.TabularResult{}, err
	}
	resp, err := statements.GetStatement(ctx, sql.GetStatementRequest{StatementId: statementID})
	if err != nil {
		return domain.TabularResult{}, fmt.Errorf("databricks: get statement: %w", statusError(err))
	}
	return c.completeStatement(ctx, statements, resp)
}

func (c *Client) completeStatement(ctx context.Context, statements statementAPI, resp *sql.StatementResponse) (domain.TabularResult, error) {
	if resp == nil {
		return domain.TabularResult{}, errors.New("databricks: empty statement response")
	}
	ctx, cancel := context.WithTimeout(ctx, c.waitTimeout)
	defer cancel()

	for pending(resp) {
		if err := c.sleep(ctx); err != nil {
			return domain.TabularResult{}, fmt.Errorf("databricks: wait for statement %s: %w", resp.StatementId, err)
		}
		next, err := statements.GetStatement(ctx, sql.GetStatementRequest{StatementId: resp.StatementId})
		if err != nil {
			return domain.TabularResult{}, fmt.Errorf("databricks: poll statement: %w", statusError(err))
		}
		if next.StatementId == "" {
			next.StatementId = resp.StatementId
		}
		resp = next
	}

	state, msg := statementState(resp)
	if state != sql.StatementStateSucceeded {
		return domain.TabularResult{}, fmt.Errorf("databricks: statement %s ended in state %s: %s", resp.StatementId, state, msg)
	}
	if resp.Manifest == nil || resp.Manifest.Schema == nil {
		return domain.TabularResult{}, fmt.Errorf("databricks: statement %s has no manifest", resp.StatementId)
	}

	schema := resp.Manifest.Schema.Columns
	var rows [][]string
	chunk := resp.Result
	for chunk != nil {
		rows = append(rows, chunk.DataArray...)
		if chunk.NextChunkInternalLink == "" {
			break
		}
		next, err := statements.GetStatementResultChunkN(ctx, sql.GetStatementResultChunkNRequest{
			StatementId: resp.StatementId,
			ChunkIndex:  chunk.NextChunkIndex,
		})
		if err != nil {
			return domain.TabularResult{}, fmt.Errorf("databricks: fetch result chunk %d: %w", chunk.NextChunkIndex, statusError(err))
		}
		chunk = next
	}
	return decodeRows(schema, rows)
}

func pending(resp *sql.StatementResponse) bool {
	state, _ := statementState(resp)
	return state == sql.StatementStatePending || state == sql.StatementStateRunning
}

func statementState(resp *sql.StatementResponse) (sql.StatementState, string) {
	if resp.Status == nil {
		return "", ""
	}
	msg := ""
	if resp.Status.Error != nil {
		msg = resp.Status.Error.Message
	}
	return resp.Status.State, msg
}

// decodeRows converts JSON_ARRAY cells to typed values using the manifest's
// type names.
func decodeRows(schema []sql.ColumnInfo, rows [][]string) (domain.TabularResult, error) {
	cols := make([]domain.Column, len(schema))
	for i, s := range schema {
		cols[i] = domain.Column{Name: s.Name, Values: make([]any, len(rows))}
	}
	for r, row := range rows {
		if len(row) != len(schema) {
			return domain.TabularResult{}, fmt.Errorf("databricks: row %d has %d cells, want %d", r, len(row), len(schema))
		}
		for i, cell := range row {
			cols[i].Values[r] = decodeCell(string(schema[i].TypeName), cell)
		}
	}
	return domain.NewTabularResult(cols...)
}

// decodeCell keeps the raw text when a cell does not parse as its declared
// type; downstream coercion decides what to do with it. The SDK decodes JSON
// null into "", so an empty cell of a non-string type is null. Non-finite
// floats are null too: they have no JSON encoding.
func decodeCell(typeName string, cell string) any {
	typeName = strings.ToUpper(typeName)
	if cell == "" && typeName != "STRING" && typeName != "CHAR" {
		return nil
	}
	switch typeName {
	case "LONG", "INT", "SHORT", "BYTE":
		if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
			return n
		}
	case "DOUBLE", "FLOAT", "DECIMAL":
		if f, err := strconv.ParseFloat(cell, 64); err == nil {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil
			}
			return f
		}
	case "BOOLEAN":
		if b, err := strconv.ParseBool(cell); err == nil {
			return b
		}
	}
	return cell
}

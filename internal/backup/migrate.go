package backup

import "encoding/json"

// Field names used by releases before the records were renamed.
var (
	budgetRenames = map[string]string{
		"numeroReferencia":  "referenceNumber",
		"descripcion":       "description",
		"porcentajeUsable":  "usablePercentage",
		"fechaCreacion":     "createdAt",
		"fechaModificacion": "modifiedAt",
	}
	expenseRenames = map[string]string{
		"numeroRefGasto": "referenceNumber",
		"descripcion":    "description",
		"importe":        "amount",
		"presupuestoId":  "budgetId",
		"fecha":          "createdAt",
	}
)

// migrate renames legacy keys of rec and decodes it into dst. A key
// already present under its current name wins over the legacy one.
// It returns how many keys were renamed.
func migrate(rec map[string]json.RawMessage, renames map[string]string, dst any) (int, error) {
	n := 0
	for legacy, current := range renames {
		v, ok := rec[legacy]
		if !ok {
			continue
		}
		delete(rec, legacy)
		if _, exists := rec[current]; !exists {
			rec[current] = v
			n++
		}
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return 0, err
	}
	return n, json.Unmarshal(buf, dst)
}

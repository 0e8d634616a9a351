package analytics

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Custom report domains.
const (
	CustomAppointments = "appointments"
	CustomFinancial    = "financial"
	CustomClinical     = "clinical"
)

// CustomRequest selects a whitelisted custom report.
type CustomRequest struct {
	Domain  string   `json:"domain"`
	Period  string   `json:"period"`
	GroupBy []string `json:"group_by"`
	Metrics []string `json:"metrics"`
}

// CustomQuery is a validated custom report selection bound to a fixed SQL
// statement. It can only be built by PlanCustom.
type CustomQuery struct {
	Domain     string
	Dimensions []string
	Metric     string
	statement  string
}

// Columns lists the output columns in order.
func (q CustomQuery) Columns() []string {
	cols := make([]string, 0, len(q.Dimensions)+1)
	cols = append(cols, q.Dimensions...)
	return append(cols, q.Metric)
}

// Statement returns the SQL text for the selection. Its only parameters are
// $1 clinic id, $2 start and $3 end.
func (q CustomQuery) Statement() string { return q.statement }

// Field is one named value of a custom report row.
type Field struct {
	Column string
	Value  interface{}
}

// Row is an ordered list of fields. It encodes as a JSON object whose keys
// keep the column order.
type Row []Field

// Get returns the value of column and whether it is present.
func (r Row) Get(column string) (interface{}, bool) {
	for _, f := range r {
		if f.Column == column {
			return f.Value, true
		}
	}
	return nil, false
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Column)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// CustomReport is the result of a custom report run.
type CustomReport struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

type customDomain struct {
	metric     string
	dimensions []string // allowed, in output order
	single     bool     // at most one dimension, earliest in dimensions wins
	fixed      bool     // dimensions always applied
}

var customDomains = map[string]customDomain{
	CustomAppointments: {metric: "count", dimensions: []string{"status", "doctor"}},
	CustomFinancial:    {metric: "sum_revenue", dimensions: []string{"doctor", "service"}, single: true},
	CustomClinical:     {metric: "count", dimensions: []string{"cid10"}, fixed: true},
}

// customStatements is keyed by "<domain>:<dimension,...>".
var customStatements = map[string]string{
	"appointments:": `
		SELECT COUNT(a.id) AS count
		FROM appointments a
		WHERE a.clinic_id = $1 AND a.scheduled_datetime BETWEEN $2 AND $3`,
	"appointments:status": `
		SELECT a.status AS status, COUNT(a.id) AS count
		FROM appointments a
		WHERE a.clinic_id = $1 AND a.scheduled_datetime BETWEEN $2 AND $3
		GROUP BY a.status
		ORDER BY count DESC, status`,
	"appointments:doctor": `
		SELECT TRIM(CONCAT(u.first_name, ' ', u.last_name)) AS doctor, COUNT(a.id) AS count
		FROM appointments a
		JOIN users u ON u.id = a.doctor_id
		WHERE a.clinic_id = $1 AND a.scheduled_datetime BETWEEN $2 AND $3
		GROUP BY 1
		ORDER BY count DESC, doctor`,
	"appointments:status,doctor": `
		SELECT a.status AS status, TRIM(CONCAT(u.first_name, ' ', u.last_name)) AS doctor, COUNT(a.id) AS count
		FROM appointments a
		JOIN users u ON u.id = a.doctor_id
		WHERE a.clinic_id = $1 AND a.scheduled_datetime BETWEEN $2 AND $3
		GROUP BY 1, 2
		ORDER BY count DESC, status, doctor`,
	"financial:": `
		SELECT COALESCE(SUM(i.total_amount), 0) AS sum_revenue
		FROM invoices i
		WHERE i.clinic_id = $1 AND i.issue_date BETWEEN $2 AND $3 AND i.status <> 'cancelled'`,
	"financial:doctor": `
		SELECT TRIM(CONCAT(u.first_name, ' ', u.last_name)) AS doctor, COALESCE(SUM(i.total_amount), 0) AS sum_revenue
		FROM invoices i
		JOIN appointments a ON a.id = i.appointment_id
		JOIN users u ON u.id = a.doctor_id
		WHERE i.clinic_id = $1 AND i.issue_date BETWEEN $2 AND $3 AND i.status <> 'cancelled'
		GROUP BY 1
		ORDER BY sum_revenue DESC`,
	"financial:service": `
		SELECT COALESCE(s.name, '` + UnknownService + `') AS service, COALESCE(SUM(l.line_total), 0) AS sum_revenue
		FROM invoice_lines l
		JOIN invoices i ON i.id = l.invoice_id
		LEFT JOIN service_items s ON s.id = l.service_item_id
		WHERE i.clinic_id = $1 AND i.issue_date BETWEEN $2 AND $3 AND i.status <> 'cancelled'
		GROUP BY 1
		ORDER BY sum_revenue DESC`,
	"clinical:cid10": `
		SELECT d.cid_code AS cid10, COUNT(d.id) AS count
		FROM diagnoses d
		JOIN clinical_records cr ON cr.id = d.clinical_record_id
		JOIN appointments a ON a.id = cr.appointment_id
		WHERE a.clinic_id = $1 AND a.scheduled_datetime BETWEEN $2 AND $3
		GROUP BY d.cid_code
		ORDER BY count DESC, cid10`,
}

// PlanCustom validates req against the custom report vocabulary and binds it
// to its statement. Anything outside the vocabulary is a ClientError.
func PlanCustom(req CustomRequest) (CustomQuery, error) {
	dom, ok := customDomains[req.Domain]
	if !ok {
		return CustomQuery{}, clientErrorf("unsupported domain %q", req.Domain)
	}

	requested := make(map[string]bool, len(req.GroupBy))
	for _, g := range req.GroupBy {
		if !contains(dom.dimensions, g) {
			return CustomQuery{}, clientErrorf("unsupported group_by %q for domain %s", g, req.Domain)
		}
		requested[g] = true
	}
	for _, m := range req.Metrics {
		if m != dom.metric {
			return CustomQuery{}, clientErrorf("unsupported metric %q for domain %s", m, req.Domain)
		}
	}

	var dims []string
	for _, d := range dom.dimensions {
		if dom.fixed || requested[d] {
			dims = append(dims, d)
			if dom.single {
				break
			}
		}
	}

	key := req.Domain + ":" + strings.Join(dims, ",")
	stmt, ok := customStatements[key]
	if !ok {
		return CustomQuery{}, clientErrorf("unsupported selection %q", key)
	}
	return CustomQuery{Domain: req.Domain, Dimensions: dims, Metric: dom.metric, statement: stmt}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

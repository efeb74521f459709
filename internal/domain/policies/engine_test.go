package policies

import (
	"reflect"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC) // martes 15:00 UTC

func specialtyPolicy(id, patientCI string, specialties []string, effect Effect, priority int, createdAt time.Time) Policy {
	return Policy{
		ID:        id,
		PatientCI: patientCI,
		Type:      TypeSpecialty,
		Config:    Config{Specialties: specialties},
		Effect:    effect,
		Priority:  priority,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func professionalDenyPolicy(id, patientCI string, denied []string, priority int, createdAt time.Time) Policy {
	return Policy{
		ID:        id,
		PatientCI: patientCI,
		Type:      TypeProfessional,
		Config:    Config{DeniedProfessionals: denied},
		Effect:    EffectDeny,
		Priority:  priority,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func baseRequest() AccessContext {
	return AccessContext{
		ProfessionalID: "prof-2",
		Specialties:    []string{"CARDIOLOGY"},
		ClinicID:       "clinic-1",
		PatientCI:      "1.234.567-8",
		DocumentID:     "doc-1",
		DocumentType:   "LAB_RESULT",
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	set := []Policy{
		specialtyPolicy("p1", "1.234.567-8", []string{"CARDIOLOGY"}, EffectPermit, 10, testNow.Add(-time.Hour)),
		professionalDenyPolicy("p2", "1.234.567-8", []string{"prof-9"}, 20, testNow.Add(-time.Hour)),
	}

	r1, err := Evaluate(baseRequest(), set, testNow)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	r2, err := Evaluate(baseRequest(), set, testNow)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if !reflect.DeepEqual(r1, r2) {
		t.Fatalf("expected deterministic result, got %#v vs %#v", r1, r2)
	}
}

func TestEvaluate_InvalidInput(t *testing.T) {
	req := baseRequest()
	req.PatientCI = ""
	if _, err := Evaluate(req, nil, testNow); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput for empty patient, got %v", err)
	}

	req = baseRequest()
	req.ProfessionalID = "  "
	if _, err := Evaluate(req, nil, testNow); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput for empty professional, got %v", err)
	}
}

func TestEvaluate_NoPolicies_Pending(t *testing.T) {
	res, err := Evaluate(baseRequest(), nil, testNow)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.Decision != DecisionPending {
		t.Fatalf("expected PENDING, got %s", res.Decision)
	}
	if res.DecidingPolicyID != "" {
		t.Fatalf("expected empty deciding policy on PENDING, got %s", res.DecidingPolicyID)
	}
}

func TestEvaluate_NoMatch_Pending_ButAudited(t *testing.T) {
	set := []Policy{
		specialtyPolicy("p1", "1.234.567-8", []string{"NEUROLOGY"}, EffectPermit, 10, testNow.Add(-time.Hour)),
	}
	res, err := Evaluate(baseRequest(), set, testNow)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.Decision != DecisionPending {
		t.Fatalf("expected PENDING, got %s", res.Decision)
	}
	// La política vigente se consideró aunque no matchee: es el audit trail.
	if len(res.EvaluatedPolicyIDs) != 1 || res.EvaluatedPolicyIDs[0] != "p1" {
		t.Fatalf("expected [p1] evaluated, got %#v", res.EvaluatedPolicyIDs)
	}
}

func TestEvaluate_EmergencyOverride_BeatsEverything(t *testing.T) {
	deny := professionalDenyPolicy("deny-all", "1.234.567-8", []string{"prof-2"}, 100, testNow.Add(-time.Hour))
	emergency := Policy{
		ID:        "emergency",
		PatientCI: "1.234.567-8",
		Type:      TypeEmergencyOverride,
		Config:    Config{Enabled: true, RequiresAudit: true},
		Effect:    EffectPermit,
		Priority:  0,
		CreatedAt: testNow.Add(-time.Hour),
	}

	res, err := Evaluate(baseRequest(), []Policy{deny, emergency}, testNow)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.Decision != DecisionPermit {
		t.Fatalf("expected PERMIT via emergency override, got %s", res.Decision)
	}
	if !res.RequiresAudit {
		t.Fatalf("expected requires audit on emergency override")
	}
	if res.DecidingPolicyID != "emergency" {
		t.Fatalf("expected deciding policy emergency, got %s", res.DecidingPolicyID)
	}
}

func TestEvaluate_EmergencyOverride_Disabled_Ignored(t *testing.T) {
	emergency := Policy{
		ID:        "emergency",
		PatientCI: "1.234.567-8",
		Type:      TypeEmergencyOverride,
		Config:    Config{Enabled: false},
		Effect:    EffectPermit,
		CreatedAt: testNow.Add(-time.Hour),
	}
	res, err := Evaluate(baseRequest(), []Policy{emergency}, testNow)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.Decision != DecisionPending {
		t.Fatalf("expected PENDING with disabled override, got %s", res.Decision)
	}
}

func TestEvaluate_HighestPriorityWins(t *testing.T) {
	// Escenario de referencia: SPECIALTY permit prio 10 + deny-list prio 20.
	set := []Policy{
		specialtyPolicy("allow-cardio", "1.234.567-8", []string{"CARDIOLOGY"}, EffectPermit, 10, testNow.Add(-2*time.Hour)),
		professionalDenyPolicy("deny-prof9", "1.234.567-8", []string{"prof-9"}, 20, testNow.Add(-time.Hour)),
	}

	req := baseRequest()
	req.ProfessionalID = "prof-9"

	res, err := Evaluate(req, set, testNow)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.Decision != DecisionDeny {
		t.Fatalf("expected DENY (priority 20 wins), got %s", res.Decision)
	}
	if res.DecidingPolicyID != "deny-prof9" {
		t.Fatalf("expected deciding deny-prof9, got %s", res.DecidingPolicyID)
	}
}

func TestEvaluate_SpecialtyPermit_ForOtherProfessional(t *testing.T) {
	set := []Policy{
		specialtyPolicy("allow-cardio", "1.234.567-8", []string{"CARDIOLOGY"}, EffectPermit, 10, testNow.Add(-2*time.Hour)),
		professionalDenyPolicy("deny-prof9", "1.234.567-8", []string{"prof-9"}, 20, testNow.Add(-time.Hour)),
	}

	res, err := Evaluate(baseRequest(), set, testNow) // prof-2, CARDIOLOGY
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.Decision != DecisionPermit {
		t.Fatalf("expected PERMIT via specialty, got %s (%s)", res.Decision, res.Reason)
	}
	if res.DecidingPolicyID != "allow-cardio" {
		t.Fatalf("expected deciding allow-cardio, got %s", res.DecidingPolicyID)
	}
}

func TestEvaluate_PriorityTie_LaterCreatedWins(t *testing.T) {
	older := specialtyPolicy("older", "1.234.567-8", []string{"CARDIOLOGY"}, EffectPermit, 10, testNow.Add(-2*time.Hour))
	newer := specialtyPolicy("newer", "1.234.567-8", []string{"CARDIOLOGY"}, EffectDeny, 10, testNow.Add(-time.Hour))

	res, err := Evaluate(baseRequest(), []Policy{older, newer}, testNow)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.DecidingPolicyID != "newer" {
		t.Fatalf("expected later-created policy to win the tie, got %s", res.DecidingPolicyID)
	}
	if res.Decision != DecisionDeny {
		t.Fatalf("expected DENY from newer policy, got %s", res.Decision)
	}
}

func TestEvaluate_ExpiredPolicy_NeverMatches(t *testing.T) {
	until := testNow.Add(-time.Minute)
	p := specialtyPolicy("expired", "1.234.567-8", []string{"CARDIOLOGY"}, EffectPermit, 10, testNow.Add(-time.Hour))
	p.ValidUntil = &until

	res, err := Evaluate(baseRequest(), []Policy{p}, testNow)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.Decision != DecisionPending {
		t.Fatalf("expected PENDING (policy expired), got %s", res.Decision)
	}
	if len(res.EvaluatedPolicyIDs) != 0 {
		t.Fatalf("expired policy must not appear in audit trail, got %#v", res.EvaluatedPolicyIDs)
	}
}

func TestEvaluate_NotYetValidPolicy_Skipped(t *testing.T) {
	from := testNow.Add(time.Hour)
	p := specialtyPolicy("future", "1.234.567-8", []string{"CARDIOLOGY"}, EffectPermit, 10, testNow.Add(-time.Hour))
	p.ValidFrom = &from

	res, err := Evaluate(baseRequest(), []Policy{p}, testNow)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.Decision != DecisionPending {
		t.Fatalf("expected PENDING (policy not yet valid), got %s", res.Decision)
	}
}

func TestEvaluate_OtherPatientsPolicies_Ignored(t *testing.T) {
	other := specialtyPolicy("other", "9.999.999-9", []string{"CARDIOLOGY"}, EffectPermit, 10, testNow.Add(-time.Hour))

	res, err := Evaluate(baseRequest(), []Policy{other}, testNow)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.Decision != DecisionPending {
		t.Fatalf("expected PENDING ignoring foreign policy, got %s", res.Decision)
	}
	if len(res.EvaluatedPolicyIDs) != 0 {
		t.Fatalf("foreign policy must not be evaluated, got %#v", res.EvaluatedPolicyIDs)
	}
}

func TestEvaluate_DocumentScope_OnlyGatesApplicability(t *testing.T) {
	scoped := specialtyPolicy("scoped", "1.234.567-8", []string{"CARDIOLOGY"}, EffectDeny, 5, testNow.Add(-time.Hour))
	scoped.DocumentID = "doc-other"
	global := specialtyPolicy("global", "1.234.567-8", []string{"CARDIOLOGY"}, EffectPermit, 1, testNow.Add(-2*time.Hour))

	// El request es por doc-1: la scoped no aplica aunque tenga más prioridad.
	res, err := Evaluate(baseRequest(), []Policy{scoped, global}, testNow)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.Decision != DecisionPermit || res.DecidingPolicyID != "global" {
		t.Fatalf("expected global policy to decide, got %s via %s", res.Decision, res.DecidingPolicyID)
	}

	// Por doc-other compiten las dos y la prioridad (no la especificidad)
	// decide: scoped prio 5 > global prio 1.
	req := baseRequest()
	req.DocumentID = "doc-other"
	res, err = Evaluate(req, []Policy{scoped, global}, testNow)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.Decision != DecisionDeny || res.DecidingPolicyID != "scoped" {
		t.Fatalf("expected scoped policy to win on priority, got %s via %s", res.Decision, res.DecidingPolicyID)
	}
}

func TestEvaluate_DocumentTypePolicy(t *testing.T) {
	p := Policy{
		ID:        "doctype",
		PatientCI: "1.234.567-8",
		Type:      TypeDocumentType,
		Config:    Config{DocumentTypes: []string{"LAB_RESULT", "IMAGING"}},
		Effect:    EffectPermit,
		Priority:  10,
		CreatedAt: testNow.Add(-time.Hour),
	}

	res, err := Evaluate(baseRequest(), []Policy{p}, testNow)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.Decision != DecisionPermit {
		t.Fatalf("expected PERMIT for allowed document type, got %s", res.Decision)
	}

	req := baseRequest()
	req.DocumentType = "PRESCRIPTION"
	res, err = Evaluate(req, []Policy{p}, testNow)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.Decision != DecisionPending {
		t.Fatalf("expected PENDING for other document type, got %s", res.Decision)
	}
}

func TestEvaluate_ClinicPolicy(t *testing.T) {
	p := Policy{
		ID:        "clinic",
		PatientCI: "1.234.567-8",
		Type:      TypeClinic,
		Config:    Config{ClinicIDs: []string{"clinic-1"}},
		Effect:    EffectPermit,
		Priority:  10,
		CreatedAt: testNow.Add(-time.Hour),
	}

	res, err := Evaluate(baseRequest(), []Policy{p}, testNow)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.Decision != DecisionPermit {
		t.Fatalf("expected PERMIT for allowed clinic, got %s", res.Decision)
	}

	req := baseRequest()
	req.ClinicID = "clinic-9"
	res, _ = Evaluate(req, []Policy{p}, testNow)
	if res.Decision != DecisionPending {
		t.Fatalf("expected PENDING for other clinic, got %s", res.Decision)
	}
}

func TestEvaluate_TimeBasedPolicy(t *testing.T) {
	p := Policy{
		ID:        "office-hours",
		PatientCI: "1.234.567-8",
		Type:      TypeTimeBased,
		Config: Config{
			Weekdays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
			HourFrom: 8,
			HourTo:   18,
		},
		Effect:    EffectPermit,
		Priority:  10,
		CreatedAt: testNow.Add(-time.Hour),
	}

	// testNow es martes 15:00 => dentro de la ventana.
	res, err := Evaluate(baseRequest(), []Policy{p}, testNow)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.Decision != DecisionPermit {
		t.Fatalf("expected PERMIT inside window, got %s", res.Decision)
	}

	// Mismo martes a las 22:00 => fuera de horario.
	night := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	res, _ = Evaluate(baseRequest(), []Policy{p}, night)
	if res.Decision != DecisionPending {
		t.Fatalf("expected PENDING outside window, got %s", res.Decision)
	}

	// Domingo 15:00 => día no permitido.
	sunday := time.Date(2026, 3, 8, 15, 0, 0, 0, time.UTC)
	res, _ = Evaluate(baseRequest(), []Policy{p}, sunday)
	if res.Decision != DecisionPending {
		t.Fatalf("expected PENDING on sunday, got %s", res.Decision)
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		t       PolicyType
		cfg     Config
		wantErr bool
	}{
		{"doctype vacío", TypeDocumentType, Config{}, true},
		{"doctype ok", TypeDocumentType, Config{DocumentTypes: []string{"LAB_RESULT"}}, false},
		{"professional sin listas", TypeProfessional, Config{}, true},
		{"professional deny ok", TypeProfessional, Config{DeniedProfessionals: []string{"prof-9"}}, false},
		{"specialty vacío", TypeSpecialty, Config{}, true},
		{"clinic ok", TypeClinic, Config{ClinicIDs: []string{"clinic-1"}}, false},
		{"time sin días", TypeTimeBased, Config{HourFrom: 8, HourTo: 18}, true},
		{"time ventana invertida", TypeTimeBased, Config{Weekdays: []time.Weekday{time.Monday}, HourFrom: 18, HourTo: 8}, true},
		{"time ok", TypeTimeBased, Config{Weekdays: []time.Weekday{time.Monday}, HourFrom: 8, HourTo: 18}, false},
		{"emergency ok", TypeEmergencyOverride, Config{Enabled: true}, false},
	}

	for _, tc := range cases {
		err := tc.cfg.Validate(tc.t)
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
	}
}

package domain

import "testing"

func TestDeliveryStatusMeetLattice(t *testing.T) {
	cases := []struct {
		name   string
		start  DeliveryStatus
		update DeliveryStatus
		want   DeliveryStatus
	}{
		{"unset loses to success", DeliveryStatusUnset, DeliveryStatusSuccess, DeliveryStatusSuccess},
		{"unset loses to failed", DeliveryStatusUnset, DeliveryStatusFailed, DeliveryStatusFailed},
		{"success stays success on success", DeliveryStatusSuccess, DeliveryStatusSuccess, DeliveryStatusSuccess},
		{"failed is absorbing over success", DeliveryStatusSuccess, DeliveryStatusFailed, DeliveryStatusFailed},
		{"failed stays failed on success", DeliveryStatusFailed, DeliveryStatusSuccess, DeliveryStatusFailed},
		{"failed stays failed on failed", DeliveryStatusFailed, DeliveryStatusFailed, DeliveryStatusFailed},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.start.Meet(c.update); got != c.want {
				t.Fatalf("%v.Meet(%v) = %v, want %v", c.start, c.update, got, c.want)
			}
		})
	}
}

func TestDeliveryStatusString(t *testing.T) {
	if DeliveryStatusUnset.String() != "unset" {
		t.Fatalf("unset stringified as %q", DeliveryStatusUnset.String())
	}
	if DeliveryStatusSuccess.String() != "true" {
		t.Fatalf("success stringified as %q", DeliveryStatusSuccess.String())
	}
	if DeliveryStatusFailed.String() != "false" {
		t.Fatalf("failed stringified as %q", DeliveryStatusFailed.String())
	}
}

func TestPushMessageInformationVariantByID(t *testing.T) {
	job := PushMessageInformation{
		VariantInformations: []VariantMetricInformation{
			{VariantID: "v1", Receivers: 5},
			{VariantID: "v2", Receivers: 7},
		},
	}

	v, ok := job.VariantByID("v2")
	if !ok {
		t.Fatalf("expected to find v2")
	}
	v.Receivers = 99
	if job.VariantInformations[1].Receivers != 99 {
		t.Fatalf("VariantByID did not return a pointer into the slice")
	}

	if _, ok := job.VariantByID("missing"); ok {
		t.Fatalf("expected missing variant to not be found")
	}
}

func TestPushMessageInformationCompleted(t *testing.T) {
	job := PushMessageInformation{TotalVariants: 2, ServedVariants: 1}
	if job.Completed() {
		t.Fatalf("expected not completed at 1/2")
	}
	job.ServedVariants = 2
	if !job.Completed() {
		t.Fatalf("expected completed at 2/2")
	}
}

func TestVariantErrorStatusCompoundID(t *testing.T) {
	v := VariantErrorStatus{PushJobID: "job1", VariantID: "var1"}
	if got, want := v.CompoundID(), "job1:var1"; got != want {
		t.Fatalf("CompoundID() = %q, want %q", got, want)
	}
}

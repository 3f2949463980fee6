package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	geo "github.com/phillip/volunteer-listings-go/geo"
	models "github.com/phillip/volunteer-listings-go/models"
)

func TestCreateGeocodesCountryThenLocation(t *testing.T) {
	h := newHarness()
	owner := primitive.NewObjectID()

	res, err := h.svc.Create(context.Background(), owner, sampleInput(), testImage)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(h.geocoder.addresses) != 1 || h.geocoder.addresses[0] != "India Mumbai" {
		t.Fatalf("geocoded %v, want [India Mumbai]", h.geocoder.addresses)
	}
	got := res.Listing.Coordinates
	if !got.Valid() || got.Lat() != 19.07 || got.Lng() != 72.87 {
		t.Fatalf("coordinates = %+v", got)
	}
	if res.Listing.Owner != owner || res.Listing.Image != testImage {
		t.Fatalf("owner/image not set: %+v", res.Listing)
	}
	if len(h.listings.items) != 1 {
		t.Fatalf("stored %d listings, want 1", len(h.listings.items))
	}
}

func TestCreateGeocodeFailureSavesNothing(t *testing.T) {
	h := newHarness()
	h.geocoder.err = geo.ErrNoResult

	_, err := h.svc.Create(context.Background(), primitive.NewObjectID(), sampleInput(), testImage)
	if !errors.Is(err, ErrGeocode) {
		t.Fatalf("err = %v, want ErrGeocode", err)
	}
	if len(h.listings.items) != 0 {
		t.Fatalf("listing persisted despite geocode failure")
	}
}

func TestCreateProviderFailureIsUpstream(t *testing.T) {
	h := newHarness()
	h.geocoder.err = errors.New("quota exceeded")

	_, err := h.svc.Create(context.Background(), primitive.NewObjectID(), sampleInput(), testImage)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

func TestCreateValidation(t *testing.T) {
	cases := map[string]func(*ListingInput){
		"missing country": func(in *ListingInput) { in.Country = "" },
		"missing name":    func(in *ListingInput) { in.EventName = " " },
		"bad end date":    func(in *ListingInput) { in.DateTo = "12/04/2026" },
		"bad end time":    func(in *ListingInput) { in.TimeTo = "6pm" },
		"missing end":     func(in *ListingInput) { in.TimeTo = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness()
			in := sampleInput()
			mutate(&in)
			_, err := h.svc.Create(context.Background(), primitive.NewObjectID(), in, testImage)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
			if len(h.geocoder.addresses) != 0 {
				t.Fatalf("geocoder called for invalid input")
			}
		})
	}

	h := newHarness()
	if _, err := h.svc.Create(context.Background(), primitive.NewObjectID(), sampleInput(), models.Image{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing image: err = %v", err)
	}
}

func TestCreateWithoutNearbyUsersWarns(t *testing.T) {
	h := newHarness()
	h.users.add("far", "far@example.com", "Delhi")

	res, err := h.svc.Create(context.Background(), primitive.NewObjectID(), sampleInput(), testImage)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Warning == "" {
		t.Fatalf("expected a warning when nobody is near the event")
	}
	if len(h.scheduler.jobs) != 0 {
		t.Fatalf("scheduled %d reminders, want 0", len(h.scheduler.jobs))
	}
	if len(h.listings.items) != 1 {
		t.Fatalf("listing must stay saved")
	}
}

func TestCreateSchedulesReminderBeforeEnd(t *testing.T) {
	h := newHarness()
	h.users.add("asha", "asha@example.com", "Mumbai")
	h.users.add("ravi", "ravi@example.com", "Mumbai")
	h.users.add("dev", "dev@example.com", "Delhi")

	res, err := h.svc.Create(context.Background(), primitive.NewObjectID(), sampleInput(), testImage)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(h.scheduler.jobs) != 1 {
		t.Fatalf("scheduled %d reminders, want 1", len(h.scheduler.jobs))
	}
	job := h.scheduler.jobs[0]
	want := time.Date(2026, 4, 12, 17, 55, 0, 0, h.loc)
	if !job.FireAt.Equal(want) {
		t.Fatalf("FireAt = %v, want %v", job.FireAt, want)
	}
	if job.Kind != ReminderKind || job.ID != ReminderID(res.Listing.ID) || res.ReminderID != job.ID {
		t.Fatalf("job = %+v, result id %q", job, res.ReminderID)
	}
	rcpt := job.Payload.Recipients
	if len(rcpt) != 2 || rcpt[0] != "asha@example.com" || rcpt[1] != "ravi@example.com" {
		t.Fatalf("recipients = %v", rcpt)
	}
}

func TestCreateEndedEventSkipsReminder(t *testing.T) {
	h := newHarness()
	h.users.add("asha", "asha@example.com", "Mumbai")
	in := sampleInput()
	in.DateTo = "2026-02-01"

	res, err := h.svc.Create(context.Background(), primitive.NewObjectID(), in, testImage)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(h.scheduler.jobs) != 0 || res.ReminderID != "" {
		t.Fatalf("reminder scheduled for an event that already ended")
	}
}

func TestSendReminderMailsEveryRecipient(t *testing.T) {
	h := newHarness()
	h.notifier.failTo["b@example.com"] = true
	job := models.ReminderJob{
		Kind: ReminderKind,
		Payload: models.ReminderPayload{
			Organization: "Helping Hands",
			Recipients:   []string{"a@example.com", "b@example.com", "c@example.com"},
		},
	}

	err := h.svc.SendReminder(context.Background(), job)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream summary", err)
	}
	if len(h.notifier.sent) != 3 {
		t.Fatalf("sent %d, want 3", len(h.notifier.sent))
	}
	for _, m := range h.notifier.sent {
		if m.Subject != "Important Announcement from: Helping Hands" {
			t.Fatalf("subject = %q", m.Subject)
		}
		if m.Text != "Hurry Up Event is about to end" {
			t.Fatalf("text = %q", m.Text)
		}
	}
}

func TestUpdateAlwaysReGeocodes(t *testing.T) {
	h := newHarness()
	owner := primitive.NewObjectID()
	l := h.seed(owner, "Beach Cleanup")
	h.geocoder.point = models.NewGeoPoint(1, 2)

	updated, err := h.svc.Update(context.Background(), owner, l.ID, ListingInput{Description: "Bring gloves"}, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(h.geocoder.addresses) != 1 || h.geocoder.addresses[0] != "India Pune" {
		t.Fatalf("geocoded %v, want [India Pune]", h.geocoder.addresses)
	}
	if updated.Description != "Bring gloves" || updated.Coordinates.Lat() != 1 {
		t.Fatalf("updated = %+v", updated)
	}
	if updated.EventName != "Beach Cleanup" {
		t.Fatalf("unrelated field changed: %q", updated.EventName)
	}
}

func TestUpdateUsesNewAddress(t *testing.T) {
	h := newHarness()
	owner := primitive.NewObjectID()
	l := h.seed(owner, "Beach Cleanup")

	if _, err := h.svc.Update(context.Background(), owner, l.ID, ListingInput{Location: "Goa"}, nil); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if h.geocoder.addresses[0] != "India Goa" {
		t.Fatalf("geocoded %v", h.geocoder.addresses)
	}
}

func TestUpdateReplacesImage(t *testing.T) {
	h := newHarness()
	owner := primitive.NewObjectID()
	l := h.seed(owner, "Beach Cleanup")
	img := models.Image{Filename: "listings/new", URL: "https://img.test/new.jpg"}

	updated, err := h.svc.Update(context.Background(), owner, l.ID, ListingInput{}, &img)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Image != img {
		t.Fatalf("image = %+v", updated.Image)
	}
	if len(h.images.destroyed) != 1 || h.images.destroyed[0] != testImage {
		t.Fatalf("destroyed = %+v", h.images.destroyed)
	}
}

func TestUpdateErrors(t *testing.T) {
	h := newHarness()
	owner := primitive.NewObjectID()
	l := h.seed(owner, "Beach Cleanup")

	if _, err := h.svc.Update(context.Background(), owner, primitive.NewObjectID(), ListingInput{}, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing listing: err = %v", err)
	}
	if _, err := h.svc.Update(context.Background(), primitive.NewObjectID(), l.ID, ListingInput{}, nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner: err = %v", err)
	}
	h.geocoder.err = geo.ErrNoResult
	if _, err := h.svc.Update(context.Background(), owner, l.ID, ListingInput{EventName: "Renamed"}, nil); !errors.Is(err, ErrGeocode) {
		t.Fatalf("geocode failure: err = %v", err)
	}
	if h.listings.items[0].EventName != "Beach Cleanup" {
		t.Fatalf("partial update applied")
	}
}

func TestDeleteMissingIsSilent(t *testing.T) {
	h := newHarness()
	if err := h.svc.Delete(context.Background(), primitive.NewObjectID(), primitive.NewObjectID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestDeleteCancelsReminderAndImage(t *testing.T) {
	h := newHarness()
	owner := primitive.NewObjectID()
	l := h.seed(owner, "Beach Cleanup")

	if err := h.svc.Delete(context.Background(), primitive.NewObjectID(), l.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner delete: err = %v", err)
	}
	if err := h.svc.Delete(context.Background(), owner, l.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(h.listings.items) != 0 {
		t.Fatalf("listing still stored")
	}
	if len(h.scheduler.canceled) != 1 || h.scheduler.canceled[0] != ReminderID(l.ID) {
		t.Fatalf("canceled = %v", h.scheduler.canceled)
	}
	if len(h.images.destroyed) != 1 {
		t.Fatalf("image not destroyed")
	}
}

func TestNearbyFiltersByDrivingDistance(t *testing.T) {
	h := newHarness()
	owner := primitive.NewObjectID()
	a := h.seed(owner, "A")
	b := h.seed(owner, "B")
	c := h.seed(owner, "C")
	h.oracle.meters[a.ID.Hex()] = 5000
	h.oracle.meters[b.ID.Hex()] = 15000
	h.oracle.meters[c.ID.Hex()] = 8000

	res, err := h.svc.Nearby(context.Background(), models.NewGeoPoint(18.5, 73.8), 10)
	if err != nil {
		t.Fatalf("Nearby: %v", err)
	}
	if res.Considered != 3 {
		t.Fatalf("Considered = %d", res.Considered)
	}
	if len(res.Listings) != 2 || res.Listings[0].ID != a.ID || res.Listings[1].ID != c.ID {
		names := []string{}
		for _, l := range res.Listings {
			names = append(names, l.EventName)
		}
		t.Fatalf("got %v, want [A C]", names)
	}
}

func TestNearbyDropsUnroutable(t *testing.T) {
	h := newHarness()
	a := h.seed(primitive.NewObjectID(), "A")
	h.seed(primitive.NewObjectID(), "Island")
	h.oracle.meters[a.ID.Hex()] = 100

	res, err := h.svc.Nearby(context.Background(), models.NewGeoPoint(18.5, 73.8), 1)
	if err != nil {
		t.Fatalf("Nearby: %v", err)
	}
	if len(res.Listings) != 1 || res.Listings[0].ID != a.ID {
		t.Fatalf("got %d listings", len(res.Listings))
	}
}

func TestNearbyErrors(t *testing.T) {
	h := newHarness()
	if _, err := h.svc.Nearby(context.Background(), models.GeoPoint{}, 10); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing origin: err = %v", err)
	}
	h.seed(primitive.NewObjectID(), "Seeded")
	bad := []struct {
		origin models.GeoPoint
		maxKm  float64
	}{
		{models.NewGeoPoint(999, 1), 10},
		{models.NewGeoPoint(1, -181), 10},
		{models.NewGeoPoint(math.NaN(), 1), 10},
		{models.NewGeoPoint(1, 1), math.NaN()},
		{models.NewGeoPoint(1, 1), math.Inf(1)},
	}
	for _, tc := range bad {
		if _, err := h.svc.Nearby(context.Background(), tc.origin, tc.maxKm); !errors.Is(err, ErrValidation) {
			t.Fatalf("Nearby(%v, %v): err = %v", tc.origin.Coordinates, tc.maxKm, err)
		}
	}
	if h.oracle.calls != 0 {
		t.Fatalf("oracle called %d times for invalid input", h.oracle.calls)
	}
	h = newHarness()

	res, err := h.svc.Nearby(context.Background(), models.NewGeoPoint(1, 1), 10)
	if err != nil || len(res.Listings) != 0 || h.oracle.calls != 0 {
		t.Fatalf("empty store: res=%+v err=%v calls=%d", res, err, h.oracle.calls)
	}

	h.seed(primitive.NewObjectID(), "A")
	h.oracle.err = errors.New("OVER_QUERY_LIMIT")
	if _, err := h.svc.Nearby(context.Background(), models.NewGeoPoint(1, 1), 10); !errors.Is(err, ErrUpstream) {
		t.Fatalf("oracle failure: err = %v", err)
	}
}

func TestParticipateTwiceKeepsOneEntry(t *testing.T) {
	h := newHarness()
	l := h.seed(primitive.NewObjectID(), "Beach Cleanup")
	user := primitive.NewObjectID()

	if err := h.svc.Participate(context.Background(), user, l.ID); err != nil {
		t.Fatalf("first Participate: %v", err)
	}
	if err := h.svc.Participate(context.Background(), user, l.ID); !errors.Is(err, ErrDuplicateParticipation) {
		t.Fatalf("second Participate: err = %v", err)
	}
	roster := h.listings.items[0].Reviews
	if len(roster) != 1 || roster[0] != user {
		t.Fatalf("roster = %v", roster)
	}
	if err := h.svc.Participate(context.Background(), user, primitive.NewObjectID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing listing: err = %v", err)
	}
}

func TestGetResolvesParticipantsInRosterOrder(t *testing.T) {
	h := newHarness()
	l := h.seed(primitive.NewObjectID(), "Beach Cleanup")
	first := h.users.add("first", "first@example.com", "Pune")
	second := h.users.add("second", "second@example.com", "Pune")
	_ = h.svc.Participate(context.Background(), second.ID, l.ID)
	_ = h.svc.Participate(context.Background(), first.ID, l.ID)

	got, err := h.svc.Get(context.Background(), l.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Participants) != 2 || got.Participants[0].Username != "second" || got.Participants[1].Username != "first" {
		t.Fatalf("participants = %+v", got.Participants)
	}
}

func TestSearchTextIsCaseInsensitive(t *testing.T) {
	h := newHarness()
	fest := h.seed(primitive.NewObjectID(), "Music Fest")
	h.seed(primitive.NewObjectID(), "Tree Planting")

	got, err := h.svc.SearchText(context.Background(), "music")
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if len(got) != 1 || got[0].ID != fest.ID {
		t.Fatalf("got %+v", got)
	}
}

func TestSearchTextRejectsEmptyQuery(t *testing.T) {
	h := newHarness()
	if _, err := h.svc.SearchText(context.Background(), "   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestSearchSkillWithoutMatchesIsEmpty(t *testing.T) {
	h := newHarness()
	h.seed(primitive.NewObjectID(), "Music Fest", "Music")

	got, err := h.svc.SearchSkill(context.Background(), "Carpentry")
	if err != nil {
		t.Fatalf("SearchSkill: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("got %v, want empty non-nil result", got)
	}

	got, _ = h.svc.SearchSkill(context.Background(), "Music")
	if len(got) != 1 {
		t.Fatalf("exact skill: got %d", len(got))
	}
}

func TestBroadcastContinuesPastFailure(t *testing.T) {
	h := newHarness()
	owner := h.users.add("owner", "owner@example.com", "Pune")
	l := h.seed(owner.ID, "Beach Cleanup")
	for _, name := range []string{"a", "b", "c"} {
		u := h.users.add(name, name+"@example.com", "Pune")
		_ = h.svc.Participate(context.Background(), u.ID, l.ID)
	}
	h.notifier.failTo["b@example.com"] = true

	res, err := h.svc.Broadcast(context.Background(), owner.ID, l.ID, "Update", "See you there")
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if res.Attempted != 3 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(h.notifier.sent) != 3 {
		t.Fatalf("sent %d, want 3", len(h.notifier.sent))
	}
	for _, m := range h.notifier.sent {
		if m.From != "owner@example.com" || m.Subject != "Update" {
			t.Fatalf("message = %+v", m)
		}
	}
}

func TestBroadcastErrors(t *testing.T) {
	h := newHarness()
	owner := h.users.add("owner", "owner@example.com", "Pune")
	l := h.seed(owner.ID, "Beach Cleanup")

	if _, err := h.svc.Broadcast(context.Background(), owner.ID, l.ID, "s", "c"); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("empty roster: err = %v", err)
	}
	if _, err := h.svc.Broadcast(context.Background(), primitive.NewObjectID(), l.ID, "s", "c"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner: err = %v", err)
	}
	if _, err := h.svc.Broadcast(context.Background(), owner.ID, primitive.NewObjectID(), "s", "c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing listing: err = %v", err)
	}
}

func TestVolunteerLooksUpBoth(t *testing.T) {
	h := newHarness()
	l := h.seed(primitive.NewObjectID(), "Beach Cleanup")
	u := h.users.add("asha", "asha@example.com", "Pune")

	gotL, gotU, err := h.svc.Volunteer(context.Background(), l.ID, u.ID)
	if err != nil {
		t.Fatalf("Volunteer: %v", err)
	}
	if gotL.ID != l.ID || gotU.ID != u.ID {
		t.Fatalf("got %v / %v", gotL.ID, gotU.ID)
	}
	if _, _, err := h.svc.Volunteer(context.Background(), l.ID, primitive.NewObjectID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing user: err = %v", err)
	}
}

package cli

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/canceltoken"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/storage"
)

type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx *Context) error {
	pool, err := ctx.openPool()
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := storage.Migrate(ctx, pool); err != nil {
		return err
	}
	fmt.Fprintln(ctx.Out, "schema is up to date")
	return nil
}

type ScheduleSetCmd struct {
	Weekday string   `arg:"" help:"Weekday name or number (0=Sunday)."`
	Closed  bool     `help:"Mark the weekday as a non-working day."`
	Windows []string `name:"window" short:"w" help:"Working window as HH:MM-HH:MM. Repeatable."`
}

func (c *ScheduleSetCmd) Run(ctx *Context) error {
	day, err := parseWeekday(c.Weekday)
	if err != nil {
		return err
	}
	windows, err := parseWindows(c.Windows)
	if err != nil {
		return err
	}
	if !c.Closed && len(windows) == 0 {
		return fmt.Errorf("a working day needs at least one --window")
	}

	pool, err := ctx.openPool()
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := storage.NewScheduleRepository(pool)
	ws := model.WeeklySchedule{Weekday: day, IsWorkingDay: !c.Closed, Windows: windows}
	if err := repo.SetWeekly(ctx, ws); err != nil {
		return err
	}
	if err := ctx.invalidateWeekly(repo, day); err != nil {
		return fmt.Errorf("schedule saved but cache not cleared: %w", err)
	}
	return ctx.printJSON(ws)
}

type ScheduleShowCmd struct {
	Weekday string `arg:"" help:"Weekday name or number (0=Sunday)."`
}

func (c *ScheduleShowCmd) Run(ctx *Context) error {
	day, err := parseWeekday(c.Weekday)
	if err != nil {
		return err
	}
	pool, err := ctx.openPool()
	if err != nil {
		return err
	}
	defer pool.Close()

	ws, found, err := storage.NewScheduleRepository(pool).WeeklySchedule(ctx, day)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no schedule stored for %s", day)
	}
	return ctx.printJSON(ws)
}

type OverrideSetCmd struct {
	Date        string   `arg:"" help:"Date as YYYY-MM-DD."`
	Closed      bool     `help:"The clinic does not work that day."`
	Unavailable bool     `help:"Working day, but no bookings are taken."`
	Reason      string   `help:"Free-text note shown to staff."`
	Windows     []string `name:"window" short:"w" help:"Working window as HH:MM-HH:MM. Repeatable."`
}

func (c *OverrideSetCmd) Run(ctx *Context) error {
	date, err := model.ParseDate(c.Date)
	if err != nil {
		return err
	}
	windows, err := parseWindows(c.Windows)
	if err != nil {
		return err
	}
	pool, err := ctx.openPool()
	if err != nil {
		return err
	}
	defer pool.Close()

	ov := model.DayOverride{
		Date:         date,
		IsWorkingDay: !c.Closed,
		IsConfirmed:  c.Unavailable,
		Reason:       c.Reason,
		Windows:      windows,
	}
	if err := storage.NewScheduleRepository(pool).SetOverride(ctx, ov); err != nil {
		return err
	}
	return ctx.printJSON(ov)
}

type OverrideClearCmd struct {
	Date string `arg:"" help:"Date as YYYY-MM-DD."`
}

func (c *OverrideClearCmd) Run(ctx *Context) error {
	date, err := model.ParseDate(c.Date)
	if err != nil {
		return err
	}
	pool, err := ctx.openPool()
	if err != nil {
		return err
	}
	defer pool.Close()

	removed, err := storage.NewScheduleRepository(pool).ClearOverride(ctx, date)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Fprintf(ctx.Out, "no override stored for %s\n", date)
		return nil
	}
	fmt.Fprintf(ctx.Out, "override for %s removed\n", date)
	return nil
}

type SlotsCmd struct {
	Date     string `arg:"" help:"Date as YYYY-MM-DD."`
	Upcoming bool   `help:"Hide slots that have already started."`
}

type slotsOutput struct {
	Date       string             `json:"date"`
	Type       model.ScheduleType `json:"type"`
	IsBookable bool               `json:"isBookable"`
	Reason     string             `json:"reason,omitempty"`
	Windows    []model.Window     `json:"windows,omitempty"`
	Booked     []string           `json:"booked"`
	Slots      []string           `json:"slots"`
}

func (c *SlotsCmd) Run(ctx *Context) error {
	date, err := model.ParseDate(c.Date)
	if err != nil {
		return err
	}
	loc, err := ctx.location()
	if err != nil {
		return err
	}
	pool, err := ctx.openPool()
	if err != nil {
		return err
	}
	defer pool.Close()

	res, err := schedule.NewResolver(storage.NewScheduleRepository(pool)).Resolve(ctx, date)
	if err != nil {
		return err
	}
	booked, err := storage.NewAppointmentRepository(pool, outbox.NewRepository()).BookedTimes(ctx, date)
	if err != nil {
		return err
	}
	out := slotsOutput{
		Date:       date.String(),
		Type:       res.Type,
		IsBookable: res.IsBookable,
		Reason:     res.Reason,
		Windows:    res.Windows,
		Booked:     booked,
		Slots:      []string{},
	}
	if res.IsBookable {
		out.Slots = availability.ExpandWindows(res.Windows, availability.IntervalMinutes, booked)
		if c.Upcoming {
			out.Slots = availability.DropPast(out.Slots, date, ctx.now(), loc)
		}
	}
	return ctx.printJSON(out)
}

type TokenInspectCmd struct {
	Token  string `arg:"" help:"Cancellation token."`
	Secret string `help:"Signing secret." env:"CANCEL_TOKEN_SECRET" required:""`
}

type tokenOutput struct {
	AppointmentID   string    `json:"appointmentId"`
	PatientID       string    `json:"patientId"`
	PatientPhone    string    `json:"patientPhone"`
	AppointmentDate string    `json:"appointmentDate"`
	AppointmentTime string    `json:"appointmentTime"`
	IssuedAt        time.Time `json:"issuedAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

func (c *TokenInspectCmd) Run(ctx *Context) error {
	loc, err := ctx.location()
	if err != nil {
		return err
	}
	codec, err := canceltoken.NewCodec(c.Secret, loc)
	if err != nil {
		return err
	}
	p, err := codec.Verify(c.Token, ctx.now())
	if err != nil {
		return err
	}
	return ctx.printJSON(tokenOutput{
		AppointmentID:   p.AppointmentID,
		PatientID:       p.PatientID,
		PatientPhone:    p.PatientPhone,
		AppointmentDate: p.AppointmentDate,
		AppointmentTime: p.AppointmentTime,
		IssuedAt:        p.IssuedAt,
		ExpiresAt:       p.ExpiresAt,
	})
}

package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/invernadero/internal/db"
	"github.com/friendsincode/invernadero/internal/eventbus"
	"github.com/friendsincode/invernadero/internal/events"
	"github.com/friendsincode/invernadero/internal/loader"
	"github.com/friendsincode/invernadero/internal/simulation"
	"github.com/friendsincode/invernadero/internal/storage"
	"github.com/friendsincode/invernadero/internal/store"
)

const entrada = `<configuracion>
  <listaDrones><dron id="1" nombre="DR01"/><dron id="2" nombre="DR02"/></listaDrones>
  <listaInvernaderos>
    <invernadero nombre="Norte">
      <numeroHileras>2</numeroHileras>
      <plantasXhilera>2</plantasXhilera>
      <listaPlantas>
        <planta hilera="1" posicion="1" litrosAgua="1" gramosFertilizante="10">Tomate</planta>
        <planta hilera="1" posicion="2" litrosAgua="2" gramosFertilizante="20">Chile</planta>
        <planta hilera="2" posicion="1" litrosAgua="1" gramosFertilizante="10">Pepino</planta>
      </listaPlantas>
      <asignacionDrones><dron id="1" hilera="1"/><dron id="2" hilera="2"/></asignacionDrones>
      <planesRiego><plan nombre="Dia 1">H1-P2, H1-P1</plan></planesRiego>
    </invernadero>
  </listaInvernaderos>
</configuracion>`

type fixture struct {
	svc     *Service
	bus     *eventbus.Local
	archive *storage.Filesystem
}

func newFixture(t *testing.T, withArchive bool) fixture {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := database.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	f := fixture{bus: eventbus.NewLocal()}
	deps := Deps{
		Store: store.New(database, zerolog.Nop()),
		Bus:   f.bus,
	}
	if withArchive {
		f.archive, err = storage.NewFilesystem(t.TempDir())
		if err != nil {
			t.Fatalf("archive: %v", err)
		}
		deps.Archive = f.archive
	}
	f.svc = New(deps, zerolog.Nop())
	return f
}

func waitEvent(t *testing.T, sub events.Subscriber) events.Payload {
	t.Helper()
	select {
	case p := <-sub:
		return p
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestUploadAndRun(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	loaded := f.bus.Subscribe(events.EventGreenhousesLoaded)
	completed := f.bus.Subscribe(events.EventSimulationCompleted)
	archived := f.bus.Subscribe(events.EventRunArchived)

	up, err := f.svc.Upload(ctx, "entrada.xml", strings.NewReader(entrada))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(up.Greenhouses) != 1 || up.Greenhouses[0] != "Norte" {
		t.Fatalf("unexpected upload outcome: %+v", up)
	}
	if p := waitEvent(t, loaded); p["upload_id"] != up.Upload.ID {
		t.Fatalf("unexpected loaded event: %v", p)
	}

	out, err := f.svc.Run(ctx, "Norte", "Dia 1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Result.Makespan != 4 || out.Result.TotalLiters != 3 || out.Result.TotalGrams != 30 {
		t.Fatalf("unexpected result: %+v", out.Result)
	}
	if out.Cached {
		t.Fatal("first run should not be cached")
	}
	if p := waitEvent(t, completed); p["run_id"] != out.Run.ID {
		t.Fatalf("unexpected completed event: %v", p)
	}
	if p := waitEvent(t, archived); p["key"] != "Norte/"+out.Run.ID+".xml" {
		t.Fatalf("unexpected archived event: %v", p)
	}

	data, err := f.archive.Get(ctx, out.Run.ArchiveKey)
	if err != nil {
		t.Fatalf("archive get: %v", err)
	}
	if !strings.Contains(string(data), "<tiempoOptimoSegundos>4</tiempoOptimoSegundos>") {
		t.Fatalf("unexpected archived salida:\n%s", data)
	}

	salida, err := f.svc.Salida(ctx, out.Run.ID)
	if err != nil {
		t.Fatalf("salida: %v", err)
	}
	if string(salida) != string(data) {
		t.Fatal("salida should be served from the archive")
	}

	got, err := f.svc.GetRun(ctx, out.Run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Run.ArchiveKey != out.Run.ArchiveKey || got.Result.Makespan != 4 {
		t.Fatalf("unexpected stored run: %+v", got.Run)
	}

	runs, err := f.svc.ListRuns(ctx, "Norte", 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("list runs: %v (%d)", err, len(runs))
	}
}

func TestUploadFindsReplacedGreenhouses(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if got := f.svc.supersededUploads(ctx, []string{"Norte"}); len(got) != 0 {
		t.Fatalf("empty store reported replaced greenhouses: %v", got)
	}

	first, err := f.svc.Upload(ctx, "entrada.xml", strings.NewReader(entrada))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	got := f.svc.supersededUploads(ctx, []string{"Norte", "Sur"})
	if len(got) != 1 || got["Norte"] != first.Upload.ID {
		t.Fatalf("superseded = %v, want Norte -> %s", got, first.Upload.ID)
	}

	second, err := f.svc.Upload(ctx, "entrada.xml", strings.NewReader(entrada))
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if got := f.svc.supersededUploads(ctx, []string{"Norte"}); got["Norte"] != second.Upload.ID {
		t.Fatalf("superseded = %v, want Norte -> %s", got, second.Upload.ID)
	}
}

func TestRunErrors(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if _, err := f.svc.Run(ctx, "Norte", "Dia 1"); !errors.Is(err, ErrGreenhouseNotFound) {
		t.Fatalf("expected ErrGreenhouseNotFound, got %v", err)
	}
	if _, err := f.svc.Upload(ctx, "entrada.xml", strings.NewReader(entrada)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := f.svc.Run(ctx, "Norte", "Dia 9"); !errors.Is(err, simulation.ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
	if _, err := f.svc.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestUploadRejectsInvalidDocuments(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if _, err := f.svc.Upload(ctx, "entrada.json", strings.NewReader("{}")); !errors.Is(err, loader.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := f.svc.Upload(ctx, "entrada.xml", strings.NewReader("<configuracion>")); !errors.Is(err, loader.ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestSalidaRenderedWithoutArchive(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if _, err := f.svc.Upload(ctx, "entrada.xml", strings.NewReader(entrada)); err != nil {
		t.Fatalf("upload: %v", err)
	}
	out, err := f.svc.Run(ctx, "Norte", "Dia 1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Run.ArchiveKey != "" {
		t.Fatalf("unexpected archive key %q", out.Run.ArchiveKey)
	}
	salida, err := f.svc.Salida(ctx, out.Run.ID)
	if err != nil {
		t.Fatalf("salida: %v", err)
	}
	if !strings.Contains(string(salida), `<plan nombre="Dia 1">`) {
		t.Fatalf("unexpected salida:\n%s", salida)
	}
}

func TestLockForReturnsSameMutex(t *testing.T) {
	f := newFixture(t, false)
	if f.svc.lockFor("Norte") != f.svc.lockFor("Norte") {
		t.Fatal("expected one mutex per greenhouse")
	}
	if f.svc.lockFor("Norte") == f.svc.lockFor("Sur") {
		t.Fatal("expected distinct mutexes")
	}
}

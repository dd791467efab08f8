package catalog_test

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/frahmantamala/teamboard/internal"
	"github.com/frahmantamala/teamboard/internal/catalog"
	permissionDatamodel "github.com/frahmantamala/teamboard/internal/core/datamodel/permission"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// MockRepository implements catalog.RepositoryAPI for testing
type MockRepository struct {
	rows       []*permissionDatamodel.Permission
	nextID     int64
	shouldFail bool
	failError  error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{nextID: 1}
}

func (m *MockRepository) List(ctx context.Context) ([]*permissionDatamodel.Permission, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	return m.rows, nil
}

func (m *MockRepository) GetBySlug(ctx context.Context, slug string) (*permissionDatamodel.Permission, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	for _, row := range m.rows {
		if row.Slug == slug {
			return row, nil
		}
	}
	return nil, nil
}

func (m *MockRepository) GetByID(ctx context.Context, id int64) (*permissionDatamodel.Permission, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	for _, row := range m.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, nil
}

func (m *MockRepository) Upsert(ctx context.Context, p *permissionDatamodel.Permission) error {
	if m.shouldFail {
		return m.failError
	}
	for _, row := range m.rows {
		if row.Slug == p.Slug {
			row.Label = p.Label
			*p = *row
			return nil
		}
	}
	p.ID = m.nextID
	m.nextID++
	cp := *p
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *MockRepository) SetShouldFail(shouldFail bool, err error) {
	m.shouldFail = shouldFail
	m.failError = err
}

func (m *MockRepository) AddRow(id int64, slug string) {
	m.rows = append(m.rows, &permissionDatamodel.Permission{ID: id, Slug: slug, Label: slug})
}

var _ = Describe("Catalog Service", func() {
	var (
		mockRepo *MockRepository
		service  *catalog.Service
		ctx      context.Context
	)

	BeforeEach(func() {
		mockRepo = NewMockRepository()
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = catalog.NewService(mockRepo, logger)
		ctx = context.Background()
	})

	Describe("ListPermissions", func() {
		It("skips stored rows whose slug no longer parses", func() {
			mockRepo.AddRow(1, "projects.read")
			mockRepo.AddRow(2, "legacy_permission")
			mockRepo.AddRow(3, "content.update")

			perms, err := service.ListPermissions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(HaveLen(2))
			Expect(perms[0].String()).To(Equal("projects.read"))
			Expect(perms[1].String()).To(Equal("content.update"))
		})

		It("maps repository failures to a retryable store error", func() {
			mockRepo.SetShouldFail(true, errors.New("connection refused"))

			_, err := service.ListPermissions(ctx)
			Expect(err).To(MatchError(internal.ErrStoreUnavailable))
			Expect(internal.IsRetryable(err)).To(BeTrue())
		})
	})

	Describe("Lookup", func() {
		BeforeEach(func() {
			mockRepo.AddRow(7, "billing.manage")
		})

		It("returns the catalog entry", func() {
			p, err := service.Lookup(ctx, "billing.manage")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.ID).To(Equal(int64(7)))
			Expect(p.Slug.Module).To(Equal(catalog.ModuleBilling))
		})

		It("rejects malformed slugs before touching the store", func() {
			mockRepo.SetShouldFail(true, errors.New("should not be called"))

			_, err := service.Lookup(ctx, "billing")
			Expect(err).To(MatchError(internal.ErrInvalidPermission))
		})

		It("reports well-formed but unregistered slugs as unknown", func() {
			_, err := service.Lookup(ctx, "billing.read")
			Expect(err).To(MatchError(internal.ErrUnknownPermission))
		})
	})

	Describe("Register", func() {
		It("assigns an id and is idempotent by slug", func() {
			slug, _ := catalog.Parse("projects.delete")

			first, err := service.Register(ctx, catalog.Permission{Slug: slug, Label: "Delete"})
			Expect(err).NotTo(HaveOccurred())
			Expect(first.ID).To(BeNumerically(">", 0))

			second, err := service.Register(ctx, catalog.Permission{Slug: slug, Label: "Delete projects"})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.ID).To(Equal(first.ID))
			Expect(second.Label).To(Equal("Delete projects"))
		})

		It("refuses slugs outside the closed module and action sets", func() {
			_, err := service.Register(ctx, catalog.Permission{
				Slug: catalog.Slug{Module: "invoices", Action: catalog.ActionRead},
			})
			Expect(err).To(MatchError(internal.ErrInvalidPermission))
		})

		DescribeTable("refuses resources that would not parse back",
			func(resource string) {
				_, err := service.Register(ctx, catalog.Permission{
					Slug: catalog.Slug{Module: catalog.ModuleProjects, Action: catalog.ActionRead, Resource: resource},
				})
				Expect(err).To(MatchError(internal.ErrInvalidPermission))

				rows, err := mockRepo.List(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(rows).To(BeEmpty())
			},
			Entry("dotted", "files.archive"),
			Entry("uppercase", "Files"),
			Entry("spaces", "my files"),
		)
	})
})

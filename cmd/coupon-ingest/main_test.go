package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pizza-kart/internal/domain/coupon"
)

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return path
}

func testConfig(minFiles int) ingestConfig {
	return ingestConfig{MinFiles: minFiles, Capacity: 1000, FPR: 0.001}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line     string
		wantName string
		wantOK   bool
		wantType coupon.DiscountType
		wantVal  string
		wantMin  string
	}{
		{line: "pizza10", wantName: "PIZZA10", wantOK: true, wantType: coupon.DiscountPercentage, wantVal: "10"},
		{line: " FRETE ,fixed,8,50 ", wantName: "FRETE", wantOK: true, wantType: coupon.DiscountFixed, wantVal: "8", wantMin: "50"},
		{line: "HALF,PERCENTAGE,50", wantName: "HALF", wantOK: true, wantType: coupon.DiscountPercentage, wantVal: "50"},
		{line: "ODD,free_item,1", wantName: "ODD", wantOK: true, wantType: coupon.DiscountPercentage, wantVal: "10"},
		{line: "NEG,fixed,-3", wantName: "NEG", wantOK: true, wantType: coupon.DiscountPercentage, wantVal: "10"},
		{line: "AB", wantOK: false},
		{line: "", wantOK: false},
		{line: "NO SPACES", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			name, r, ok := parseLine(tt.line)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantType, r.Type)
			assert.True(t, decimal.RequireFromString(tt.wantVal).Equal(r.Value))
			if tt.wantMin == "" {
				assert.Nil(t, r.MinOrderValue)
			} else {
				require.NotNil(t, r.MinOrderValue)
				assert.True(t, decimal.RequireFromString(tt.wantMin).Equal(*r.MinOrderValue))
			}
		})
	}
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.gz", "SHARED,fixed,5", "ONLYA", "TRIPLE"),
		writeGz(t, dir, "b.gz", "shared,percentage,20", "ONLYB", "TRIPLE"),
		writeGz(t, dir, "c.gz", "TRIPLE,fixed,3", "x"),
	}

	got, err := collect(context.Background(), files, testConfig(2))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "SHARED", got[0].Name)
	assert.Equal(t, coupon.NewID("SHARED"), got[0].ID)
	assert.Equal(t, coupon.DiscountFixed, got[0].Type, "first file's rule wins")
	assert.True(t, decimal.NewFromInt(5).Equal(got[0].Value))
	assert.True(t, got[0].Active)

	assert.Equal(t, "TRIPLE", got[1].Name)
	assert.Equal(t, coupon.DiscountPercentage, got[1].Type)

	got, err = collect(context.Background(), files, testConfig(3))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "TRIPLE", got[0].Name)
}

func TestCollect_InvalidInput(t *testing.T) {
	dir := t.TempDir()
	file := writeGz(t, dir, "a.gz", "CODE")

	_, err := collect(context.Background(), nil, testConfig(1))
	assert.Error(t, err)

	_, err = collect(context.Background(), []string{file}, testConfig(2))
	assert.Error(t, err)

	_, err = collect(context.Background(), []string{filepath.Join(dir, "missing.gz")}, testConfig(1))
	assert.Error(t, err)
}

type recordingRepo struct {
	upserted []coupon.Coupon
}

func (r *recordingRepo) FindByName(context.Context, string) (*coupon.Coupon, error) {
	return nil, coupon.ErrNotFound
}

func (r *recordingRepo) Upsert(_ context.Context, c coupon.Coupon) error {
	r.upserted = append(r.upserted, c)
	return nil
}

func TestWriteCoupons(t *testing.T) {
	repo := &recordingRepo{}
	in := []coupon.Coupon{{Name: "A"}, {Name: "B"}}

	require.NoError(t, writeCoupons(context.Background(), repo, in))
	assert.Equal(t, in, repo.upserted)
}

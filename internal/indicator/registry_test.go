package indicator

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/chartflow/internal/types"
	"github.com/rxtech-lab/chartflow/pkg/errors"
)

// stubAdapter lets tests wire arbitrary dependency shapes, cycles included.
type stubAdapter struct {
	name types.IndicatorType
	deps []types.IndicatorSpec
}

func (s *stubAdapter) Name() types.IndicatorType { return s.name }

func (s *stubAdapter) Warmup(types.IndicatorSpec) (int, error) { return 0, nil }

func (s *stubAdapter) Dependencies(types.IndicatorSpec) ([]types.IndicatorSpec, error) {
	return s.deps, nil
}

func (s *stubAdapter) Batch(types.IndicatorSpec, []types.Candle) ([]types.IndicatorPoint, error) {
	return nil, nil
}

func (s *stubAdapter) Incremental(types.IndicatorSpec, State, types.Candle) (IncrementalResult, error) {
	return IncrementalResult{}, nil
}

type RegistryTestSuite struct {
	suite.Suite
	registry *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func (suite *RegistryTestSuite) SetupTest() {
	suite.registry = NewDefaultRegistry()
}

func (suite *RegistryTestSuite) TestDefaultRegistryHasAllAdapters() {
	names := suite.registry.ListAdapters()
	suite.Len(names, 5)

	for _, name := range []types.IndicatorType{
		types.IndicatorTypeSMA,
		types.IndicatorTypeEMA,
		types.IndicatorTypeRSI,
		types.IndicatorTypeMACD,
		types.IndicatorTypeBollingerBands,
	} {
		adapter, err := suite.registry.Adapter(name)
		suite.NoError(err)
		suite.Equal(name, adapter.Name())
	}
}

func (suite *RegistryTestSuite) TestUnknownAdapter() {
	_, err := suite.registry.Adapter("vwap")
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeMissingAdapter))
}

func (suite *RegistryTestSuite) TestRegisterLastWins() {
	first := &stubAdapter{name: "custom"}
	second := &stubAdapter{name: "custom"}

	suite.registry.Register(first)
	suite.registry.Register(second)

	adapter, err := suite.registry.Adapter("custom")
	suite.NoError(err)
	suite.Same(second, adapter)
}

func (suite *RegistryTestSuite) TestBuildDependencyGraph() {
	macd := specOf(types.IndicatorTypeMACD, map[string]any{"fast": 12, "slow": 26, "signal": 9})

	graph, unresolved := suite.registry.BuildDependencyGraph([]types.IndicatorSpec{macd})
	suite.Empty(unresolved)
	suite.Equal([]string{
		"ema(period=12)@1m",
		"ema(period=26)@1m",
		"ema(period=9,source=macd)@1m",
	}, graph[macd.ID()])
}

func (suite *RegistryTestSuite) TestUnknownNameExcludedNotFatal() {
	known := specOf(types.IndicatorTypeSMA, map[string]any{"period": 3})
	unknown := specOf("vwap", map[string]any{"period": 3})

	graph, unresolved := suite.registry.BuildDependencyGraph([]types.IndicatorSpec{known, unknown})
	suite.Equal([]string{unknown.ID()}, unresolved)
	suite.Contains(graph, known.ID())
	suite.NotContains(graph, unknown.ID())
}

func (suite *RegistryTestSuite) TestValidateDependenciesMissing() {
	// MACD alone: its three declared EMA specs are absent from the set.
	macd := specOf(types.IndicatorTypeMACD, map[string]any{"fast": 12, "slow": 26, "signal": 9})

	result := suite.registry.ValidateDependencies([]types.IndicatorSpec{macd})
	suite.False(result.Valid)
	suite.Len(result.Missing, 3)
	suite.Contains(result.Missing, "ema(period=12)@1m")
	suite.Contains(result.Missing, "ema(period=26)@1m")
	suite.Contains(result.Missing, "ema(period=9,source=macd)@1m")
}

func (suite *RegistryTestSuite) TestValidateDependenciesComplete() {
	macd := specOf(types.IndicatorTypeMACD, map[string]any{"fast": 12, "slow": 26, "signal": 9})
	specs := []types.IndicatorSpec{macd}

	deps, err := NewMACDAdapter().Dependencies(macd)
	suite.Require().NoError(err)
	specs = append(specs, deps...)

	result := suite.registry.ValidateDependencies(specs)
	suite.True(result.Valid)
	suite.Empty(result.Missing)
}

func (suite *RegistryTestSuite) TestTopologicalOrderDependenciesFirst() {
	macd := specOf(types.IndicatorTypeMACD, map[string]any{"fast": 12, "slow": 26, "signal": 9})

	deps, err := NewMACDAdapter().Dependencies(macd)
	suite.Require().NoError(err)

	specs := append([]types.IndicatorSpec{macd}, deps...)

	order, err := suite.registry.TopologicalOrder(specs)
	suite.Require().NoError(err)
	suite.Require().Len(order, 4)

	position := make(map[string]int, len(order))
	for i, spec := range order {
		position[spec.ID()] = i
	}

	for _, dep := range deps {
		suite.Less(position[dep.ID()], position[macd.ID()])
	}
}

func (suite *RegistryTestSuite) TestTopologicalOrderDeterministic() {
	sma := specOf(types.IndicatorTypeSMA, map[string]any{"period": 3})
	ema := specOf(types.IndicatorTypeEMA, map[string]any{"period": 5})
	rsi := specOf(types.IndicatorTypeRSI, map[string]any{"period": 14})

	specs := []types.IndicatorSpec{sma, ema, rsi}

	first, err := suite.registry.TopologicalOrder(specs)
	suite.Require().NoError(err)

	// Independent specs keep their input ordering, run after run.
	for i := 0; i < 10; i++ {
		again, err := suite.registry.TopologicalOrder(specs)
		suite.Require().NoError(err)
		suite.Equal(first, again)
	}

	suite.Equal(sma.ID(), first[0].ID())
	suite.Equal(ema.ID(), first[1].ID())
	suite.Equal(rsi.ID(), first[2].ID())
}

func (suite *RegistryTestSuite) TestCycleDetection() {
	alpha := specOf("alpha", nil)
	beta := specOf("beta", nil)

	suite.registry.Register(&stubAdapter{name: "alpha", deps: []types.IndicatorSpec{beta}})
	suite.registry.Register(&stubAdapter{name: "beta", deps: []types.IndicatorSpec{alpha}})

	// Detection must terminate and name an offender instead of hanging.
	_, err := suite.registry.TopologicalOrder([]types.IndicatorSpec{alpha, beta})
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeCircularDependency))
	suite.Contains(err.Error(), "circular dependency involving")
}

func (suite *RegistryTestSuite) TestSelfCycleDetection() {
	self := specOf("selfloop", nil)
	suite.registry.Register(&stubAdapter{name: "selfloop", deps: []types.IndicatorSpec{self}})

	_, err := suite.registry.TopologicalOrder([]types.IndicatorSpec{self})
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeCircularDependency))
}

func (suite *RegistryTestSuite) TestComputeOrderFailsFastOnMissing() {
	macd := specOf(types.IndicatorTypeMACD, map[string]any{"fast": 12, "slow": 26, "signal": 9})

	_, err := suite.registry.ComputeOrder([]types.IndicatorSpec{macd})
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeMissingDependency))
}

func (suite *RegistryTestSuite) TestComputeOrderComplete() {
	sma := specOf(types.IndicatorTypeSMA, map[string]any{"period": 3})
	bb := specOf(types.IndicatorTypeBollingerBands, map[string]any{"period": 20})

	order, err := suite.registry.ComputeOrder([]types.IndicatorSpec{sma, bb})
	suite.NoError(err)
	suite.Len(order, 2)
}

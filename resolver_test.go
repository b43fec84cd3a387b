// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package upkcore

import (
	"errors"
	"testing"
)

// buildGameAndEngine returns a populated cache with two containers: "Engine",
// holding a package-rooted "Material" export, and "Game", holding an import
// chain Engine -> Material. Game's import[1] is the one under test.
func buildGameAndEngine(t *testing.T, engineOpts ...ContainerOption) (*ContainerCache, *Container) {
	t.Helper()

	engineNames := NewNameTable()
	enginePkgName := engineNames.Intern("Engine")
	materialName := engineNames.Intern("Material")
	engineData := buildContainer(t, engineNames, nil, []ExportRow{
		{ObjectName: enginePkgName, ClassRef: NullIndex, OuterRef: NullIndex},
		{ObjectName: materialName, ClassRef: NullIndex, OuterRef: FromExport(0)},
	}, [][]byte{{}, {}})
	engine, err := DecodeContainer(engineData, "Engine", engineOpts...)
	if err != nil {
		t.Fatalf("DecodeContainer(Engine): %v", err)
	}

	gameNames := NewNameTable()
	classPkg := gameNames.Intern("Core")
	className := gameNames.Intern("Class")
	enginePkgImportName := gameNames.Intern("Engine")
	materialImportName := gameNames.Intern("Material")
	gameData := buildContainer(t, gameNames, []ImportRow{
		{ClassPackage: classPkg, ClassName: className, Outer: NullIndex, ObjectName: enginePkgImportName},
		{ClassPackage: classPkg, ClassName: className, Outer: FromImport(0), ObjectName: materialImportName},
	}, nil, nil)
	game, err := DecodeContainer(gameData, "Game")
	if err != nil {
		t.Fatalf("DecodeContainer(Game): %v", err)
	}

	cache := NewContainerCache()
	cache.Add(engine)
	cache.Add(game)
	return cache, game
}

func TestResolverResolveImportCrossContainerExport(t *testing.T) {
	cache, game := buildGameAndEngine(t)
	r := NewResolver(cache)

	row := game.Imports()[1]
	fullName, err := game.GetFullName(FromImport(1))
	if err != nil {
		t.Fatalf("GetFullName: %v", err)
	}
	if fullName != "Engine.Material" {
		t.Fatalf("GetFullName(import 1) = %q, want %q", fullName, "Engine.Material")
	}

	target, err := r.resolveImport(row, fullName, game)
	if err != nil {
		t.Fatalf("resolveImport: %v", err)
	}
	want := ObjectNode("Engine", FromExport(1))
	if target != want {
		t.Fatalf("resolveImport = %+v, want %+v", target, want)
	}
}

func TestResolverResolveImportNativeClassFallback(t *testing.T) {
	cache, game := buildGameAndEngine(t, WithNativeClasses("Actor"))
	// Replace the import chain's leaf with a name the Engine export table
	// doesn't define, so resolution must fall through to FindClass.
	gameNames := NewNameTable()
	classPkg := gameNames.Intern("Core")
	className := gameNames.Intern("Class")
	enginePkgImportName := gameNames.Intern("Engine")
	actorImportName := gameNames.Intern("Actor")
	gameData := buildContainer(t, gameNames, []ImportRow{
		{ClassPackage: classPkg, ClassName: className, Outer: NullIndex, ObjectName: enginePkgImportName},
		{ClassPackage: classPkg, ClassName: className, Outer: FromImport(0), ObjectName: actorImportName},
	}, nil, nil)
	actorGame, err := DecodeContainer(gameData, "ActorGame")
	if err != nil {
		t.Fatalf("DecodeContainer: %v", err)
	}
	cache.Add(actorGame)
	_ = game

	r := NewResolver(cache)
	row := actorGame.Imports()[1]
	fullName, err := actorGame.GetFullName(FromImport(1))
	if err != nil {
		t.Fatalf("GetFullName: %v", err)
	}
	target, err := r.resolveImport(row, fullName, actorGame)
	if err != nil {
		t.Fatalf("resolveImport: %v", err)
	}
	want := NativeClassNode("Engine", "Actor")
	if target != want {
		t.Fatalf("resolveImport = %+v, want %+v", target, want)
	}
	if !target.IsNativeClass() {
		t.Fatalf("resolveImport result is not a native class node")
	}
}

func TestResolverResolveImportUnresolved(t *testing.T) {
	cache, game := buildGameAndEngine(t)
	r := NewResolver(cache)

	gameNames := NewNameTable()
	classPkg := gameNames.Intern("Core")
	className := gameNames.Intern("Class")
	enginePkgImportName := gameNames.Intern("Engine")
	missingName := gameNames.Intern("NoSuchThing")
	gameData := buildContainer(t, gameNames, []ImportRow{
		{ClassPackage: classPkg, ClassName: className, Outer: NullIndex, ObjectName: enginePkgImportName},
		{ClassPackage: classPkg, ClassName: className, Outer: FromImport(0), ObjectName: missingName},
	}, nil, nil)
	missingGame, err := DecodeContainer(gameData, "MissingGame")
	if err != nil {
		t.Fatalf("DecodeContainer: %v", err)
	}
	cache.Add(missingGame)
	_ = game

	row := missingGame.Imports()[1]
	fullName, err := missingGame.GetFullName(FromImport(1))
	if err != nil {
		t.Fatalf("GetFullName: %v", err)
	}
	if _, err := r.resolveImport(row, fullName, missingGame); !errors.Is(err, ErrUnresolvedImport) {
		t.Fatalf("resolveImport: got %v, want ErrUnresolvedImport", err)
	}
}

func TestResolverResolveImportUnresolvedContainer(t *testing.T) {
	cache := NewContainerCache()
	names := NewNameTable()
	classPkg := names.Intern("Core")
	className := names.Intern("Class")
	pkgName := names.Intern("Nowhere")
	imports := []ImportRow{
		{ClassPackage: classPkg, ClassName: className, Outer: NullIndex, ObjectName: pkgName},
	}
	data := buildContainer(t, names, imports, nil, nil)
	c, err := DecodeContainer(data, "Game")
	if err != nil {
		t.Fatalf("DecodeContainer: %v", err)
	}
	cache.Add(c)

	r := NewResolver(cache)
	fullName, _ := c.GetFullName(FromImport(0))
	if _, err := r.resolveImport(c.Imports()[0], fullName, c); !errors.Is(err, ErrUnresolvedContainer) {
		t.Fatalf("resolveImport: got %v, want ErrUnresolvedContainer", err)
	}
}

func TestResolverAddObjectDependenciesBuildsGraph(t *testing.T) {
	cache, game := buildGameAndEngine(t)
	r := NewResolver(cache)
	graph := NewDependencyGraph()

	root := ObjectNode("Game", FromImport(1))
	if err := r.AddObjectDependencies(graph, root); err != nil {
		t.Fatalf("AddObjectDependencies: %v", err)
	}

	materialTarget := ObjectNode("Engine", FromExport(1))
	enginePkg := ObjectNode("Engine", FromExport(0))
	gameOuter := ObjectNode("Game", FromImport(0))

	if !graph.HasNode(materialTarget) {
		t.Fatalf("graph missing resolved target %+v", materialTarget)
	}
	if !graph.HasNode(enginePkg) {
		t.Fatalf("graph missing transitive outer %+v", enginePkg)
	}
	if !graph.HasNode(gameOuter) {
		t.Fatalf("graph missing import's own outer %+v", gameOuter)
	}

	order := graph.TopoSort()
	if indexOf(order, materialTarget) > indexOf(order, root) {
		t.Fatalf("resolved target %+v must precede root %+v in topo order", materialTarget, root)
	}
	if indexOf(order, enginePkg) > indexOf(order, materialTarget) {
		t.Fatalf("package export must precede the material that nests under it")
	}
	_ = game
}

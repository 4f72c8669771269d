// Package geom provides the small amount of rigid-body geometry shared by the
// planner and the tracking controller.
//
// Vectors are [r3.Vec], attitudes are unit [quat.Number] values (Real is the
// scalar part) and rotation matrices are 3x3 [mat.Dense] values mapping body
// coordinates to world coordinates:
//
//   - [QuatFromEuler], [EulerFromQuat]: ZYX (yaw-pitch-roll) conversion
//   - [RotationFromQuat], [FromColumns]: rotation matrix construction
//   - [Vee], [Hat]: so(3) <-> R^3
//   - [LimitTilt], [SoftClamp]: actuator-envelope helpers
package geom
